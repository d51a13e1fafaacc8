/*
 Copyright 2023 NanaFS Authors.

 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package apis

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/basenana/nanatree/config"
	"github.com/basenana/nanatree/pkg/dispatch"
	"github.com/basenana/nanatree/utils/logger"
)

const (
	defaultHttpTimeout = time.Minute
)

// Server is the admin endpoint of the daemon: health, metrics and profiling.
type Server struct {
	engine    *gin.Engine
	apiConfig config.Api
	queue     *dispatch.Queue
	logger    *zap.SugaredLogger
}

func (s *Server) Run(stopCh chan struct{}) {
	addr := fmt.Sprintf("%s:%d", s.apiConfig.Host, s.apiConfig.Port)
	s.logger.Infof("http server on %s", addr)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  defaultHttpTimeout,
		WriteTimeout: defaultHttpTimeout,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil {
			if err != http.ErrServerClosed {
				s.logger.Panicw("api server down", "err", err.Error())
			}
			s.logger.Infof("api server stopped")
		}
	}()

	<-stopCh
	shutdownCtx, canF := context.WithTimeout(context.TODO(), time.Second)
	defer canF()
	_ = httpServer.Shutdown(shutdownCtx)
}

func (s *Server) Ping(gCtx *gin.Context) {
	gCtx.JSON(http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// Tasks reports the continuations still waiting in the queue.
func (s *Server) Tasks(gCtx *gin.Context) {
	tasks, err := s.queue.Pending(gCtx.Request.Context())
	if err != nil {
		s.logger.Errorw("list pending tasks failed", "err", err)
		gCtx.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	gCtx.JSON(http.StatusOK, map[string]interface{}{"pending": len(tasks), "tasks": tasks})
}

func NewApiServer(queue *dispatch.Queue, cfg config.Config) (*Server, error) {
	apiConfig := cfg.Api
	if apiConfig.Port == 0 {
		return nil, fmt.Errorf("http port not set")
	}
	if apiConfig.Host == "" {
		apiConfig.Host = "127.0.0.1"
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		engine:    gin.New(),
		apiConfig: apiConfig,
		queue:     queue,
		logger:    logger.NewLogger("api"),
	}
	s.engine.Use(gin.Recovery())

	s.engine.GET("/_ping", s.Ping)
	s.engine.GET("/_tasks", s.Tasks)

	if apiConfig.Metrics {
		s.engine.GET("/metrics", gin.WrapH(metricMiddleware("metrics", promhttp.Handler())))
	}

	if apiConfig.Pprof {
		pprof.Register(s.engine)
	}

	return s, nil
}
