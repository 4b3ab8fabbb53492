// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/ZSC714725/cdripper/internal/api"
	"github.com/ZSC714725/cdripper/internal/logger"
	"github.com/ZSC714725/cdripper/internal/session"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd runs the HTTP API.
func NewServeCmd(deps *Dependencies) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			bindAddr := deps.Config.Server.Bind
			if len(bind) != 0 {
				bindAddr = bind
			}

			tc, err := deps.toolchain()
			if err != nil {
				return err
			}
			h, err := deps.openHistory()
			if err != nil {
				return err
			}

			store := session.NewStore(session.StoreConfig{
				Defaults:               deps.sessionDefaults(tc, h, nil),
				ValidateRipperOptions:  tc.ValidateRipperOptions,
				ValidateEncoderOptions: tc.ValidateEncoderOptions,
				Logger:                 logger.WithPrefix(deps.Logger, "store"),
			})
			handler := api.NewHandler(api.Config{
				Store:   store,
				Tools:   tc,
				History: h,
				Album:   deps.albumConfig(),
				Logger:  logger.WithPrefix(deps.Logger, "api"),
			})

			if logger.ParseLevel(deps.Config.Log.Level) != logger.LevelDebug {
				gin.SetMode(gin.ReleaseMode)
			}
			r := gin.New()
			r.Use(gin.Recovery(), cors.Default())
			handler.Register(r)

			srv := &http.Server{Addr: bindAddr, Handler: r}
			errCh := make(chan error, 1)
			go func() {
				deps.Logger.Info("cdripper listening on %s", bindAddr)
				errCh <- srv.ListenAndServe()
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			deps.Logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				deps.Logger.Error("shutdown: %v", err)
			}
			for _, e := range store.List("") {
				if err := store.Delete(e.ID()); err != nil && !errors.Is(err, session.ErrNotFound) {
					deps.Logger.Error("close session %s: %v", e.ID(), err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Bind address, overrides server.bind")
	return cmd
}
