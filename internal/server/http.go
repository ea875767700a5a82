package server

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rpiboot/rpibootd/internal/logs"
	"github.com/rpiboot/rpibootd/internal/server/api"
	"github.com/rpiboot/rpibootd/internal/server/status"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

const (
	csrfKeyLength   = 32
	shutdownTimeout = 5 * time.Second
)

type serverPrivate struct {
	*http.Server
}

type Server struct {
	serverPrivate

	writer io.Writer
	logger *logs.Logger
}

// New builds the local status server on addr. h is usually the
// running core.Session.
func New(
	addr string,
	h status.History,
	stderrWriter io.Writer,
	shortWriter *logs.MemoryWriter,
	longWriter *logs.MemoryWriter,
	version string,
) (*Server, error) {
	logger := &logs.Logger{Writer: longWriter}
	logger.Log("starting")

	csrfKey := make([]byte, csrfKeyLength)
	if _, err := rand.Read(csrfKey); err != nil {
		return nil, fmt.Errorf("csrf key: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
	}

	allWriter := io.MultiWriter(stderrWriter, shortWriter, longWriter)
	s := &Server{
		serverPrivate: serverPrivate{
			Server: srv,
		},
		writer: allWriter,
		logger: logger,
	}

	origin := "http://" + addr

	r := mux.NewRouter()
	statusRouter := r.PathPrefix("/status").Subrouter()
	apiRouter := r.PathPrefix("/api").Methods("GET").Subrouter()
	redirectRouter := r.Methods("GET").Path("/").Subrouter()

	status.ServeStatus(statusRouter, h, version, origin, csrfKey, shortWriter, longWriter)
	api.ServeAPI(apiRouter, h, version, logger)
	status.ServeStatusRedirect(redirectRouter, origin)

	var handler http.Handler = r

	// Log after the request is done, in the Apache format.
	handler = handlers.LoggingHandler(allWriter, handler)
	// Log when the request is received.
	handler = s.logRequest(handler)

	srv.Handler = handler

	logger.Log("server created")
	return s, nil
}

func (s *Server) logRequest(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		text := fmt.Sprintf("%s %s\n", r.Method, r.URL)
		_, err := s.writer.Write([]byte(text))
		if err != nil {
			// give up, just print on stdout
			fmt.Println(err)
		}
		handler.ServeHTTP(w, r)
	})
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.logger.Log("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(sctx); err != nil {
			s.logger.Log("shutdown: " + err.Error())
		}
	}()

	err := s.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
