package status

import (
	"net/http"

	"github.com/rpiboot/rpibootd/internal/core"
	"github.com/rpiboot/rpibootd/internal/logs"

	"github.com/gorilla/csrf"
	"github.com/gorilla/mux"
)

// This package serves the status page on /status/ and the
// detailed log at /status/log.gz

// History is what the page shows; core.Session implements it.
type History interface {
	History() []core.Attempt
}

type status struct {
	history                             History
	version                             string
	shortMemoryWriter, longMemoryWriter *logs.MemoryWriter
	logger                              *logs.Logger
}

const timeFormat = "2006-01-02 15:04:05"

func ServeStatusRedirect(r *mux.Router, origin string) {
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, origin+"/status/", http.StatusMovedPermanently)
	})
	r.Use(OriginCheck(map[string]string{
		"/": "",
	}))
}

// ServeStatus registers the page. origin is the scheme and host the
// page is served from; only it may download the log.
func ServeStatus(
	r *mux.Router,
	h History,
	v string,
	origin string,
	csrfKey []byte,
	mw, dmw *logs.MemoryWriter,
) {
	status := &status{
		history:           h,
		version:           v,
		shortMemoryWriter: mw,
		longMemoryWriter:  dmw,
		logger:            &logs.Logger{Writer: dmw},
	}
	r.Methods("GET").Path("/").HandlerFunc(status.statusPage)
	r.Methods("POST").Path("/log.gz").HandlerFunc(status.statusGzip)

	r.Use(csrf.Protect(csrfKey, csrf.Secure(false)))
	r.Use(OriginCheck(map[string]string{
		"/status/":       "",
		"/status/log.gz": origin,
	}))
}

func (s *status) statusGzip(w http.ResponseWriter, r *http.Request) {
	s.logger.Log("building gzip")

	gzip, err := s.longMemoryWriter.Gzip(s.version + "\nCurrent log:\n")
	if err != nil {
		respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", `attachment; filename="log.gz"`)
	_, err = w.Write(gzip)
	if err != nil {
		// headers are out already
		s.logger.Log("writing gzip: " + err.Error())
	}
}

func (s *status) statusPage(w http.ResponseWriter, r *http.Request) {
	s.logger.Log("building status page")

	log, err := s.shortMemoryWriter.String(s.version + "\n")
	if err != nil {
		respondError(w, err)
		return
	}

	attempts := s.history.History()
	tattempts := make([]statusTemplateAttempt, 0, len(attempts))
	// newest first
	for i := len(attempts) - 1; i >= 0; i-- {
		tattempts = append(tattempts, makeStatusTemplateAttempt(attempts[i]))
	}

	data := &statusTemplateData{
		Version:      s.version,
		Attempts:     tattempts,
		AttemptCount: len(tattempts),
		Log:          log,
		CSRFField:    csrf.TemplateField(r),
	}

	err = statusTemplate.Execute(w, data)
	if err != nil {
		respondError(w, err)
		return
	}
}

func respondError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func makeStatusTemplateAttempt(a core.Attempt) statusTemplateAttempt {
	return statusTemplateAttempt{
		Time:        a.Time.Local().Format(timeFormat),
		Path:        a.Path,
		Generation:  a.Generation,
		SerialIndex: a.SerialIndex,
		Stage:       string(a.Stage),
		Files:       a.Files,
		Failed:      a.Error != "",
		Error:       a.Error,
	}
}
