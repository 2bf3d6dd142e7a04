package query

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/restakelabs/restakex/app/query/controller"
	"github.com/restakelabs/restakex/app/query/types"
	"github.com/restakelabs/restakex/pkg/utils"
)

// NewServer creates and returns a new Server instance wired to the query routes.
func NewServer(app *types.App) error {
	ctler := controller.NewController(app)
	router, err := ctler.NewRouter()
	if err != nil {
		return err
	}

	// use <ip>:<port> to bind to a specific interface or :<port> to bind to all interfaces
	addr := utils.Env("ADDR", ":3001")

	app.Server = &http.Server{Addr: addr, Handler: controller.WithCORS(router)}
	app.Logger.Info("Starting server", zap.String("addr", addr))

	return nil
}
