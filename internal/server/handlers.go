package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/chainops/snapshot-publisher/internal/auth"
	"github.com/chainops/snapshot-publisher/internal/jobs"
)

// version is overridden at build time via -ldflags.
var version = "unreleased"

// RegisterAPI wires the job endpoints. Submission and status sit behind the
// authenticator; version and health stay open.
func RegisterAPI(router chi.Router, authenticator auth.Authenticator, controller *jobs.Controller) {
	router.Group(func(r chi.Router) {
		r.Use(authenticator.Authenticator)
		r.Post("/api/v1/snapshots", handleSubmit(controller))
		r.Get("/api/v1/status", handleStatus(controller))
	})

	router.Get("/api/v1/version", func(w http.ResponseWriter, r *http.Request) {
		_ = render.Render(w, r, VersionReply{Version: version})
	})
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// RegisterFileServer serves the snapshots directory, manifest included, and
// sends the root to it.
func RegisterFileServer(router chi.Router, snapshotsDir string) {
	fs := http.FileServer(http.Dir(snapshotsDir))

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/snapshots/", http.StatusPermanentRedirect)
	})
	router.Method("GET", "/snapshots/*", http.StripPrefix("/snapshots", fs))
}

func handleSubmit(controller *jobs.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := controller.Submit(r.Context()); err != nil {
			if errors.Is(err, jobs.ErrAlreadyRunning) {
				render.Status(r, http.StatusConflict)
				_ = render.Render(w, r, JobReply{Success: false, Output: "a job is already running"})
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		render.Status(r, http.StatusAccepted)
		_ = render.Render(w, r, JobReply{Success: true, Output: "snapshot job started"})
	}
}

func handleStatus(controller *jobs.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := controller.Status()

		reply := StatusReply{
			Running:       status.Running,
			SnapshotCount: status.SnapshotCount,
			LastSuccess:   status.LastSuccess,
			LastOutput:    status.LastOutput,
		}
		if status.Running {
			secs := uint64(status.RunningFor.Seconds())
			reply.RunningForSeconds = &secs
		}
		if !status.LastCompleted.IsZero() {
			reply.LastCompleted = status.LastCompleted.UTC().Format(time.RFC3339)
		}

		_ = render.Render(w, r, reply)
	}
}

type JobReply struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
}

type StatusReply struct {
	Running           bool    `json:"running"`
	RunningForSeconds *uint64 `json:"runningForSeconds,omitempty"`
	SnapshotCount     int     `json:"snapshotCount"`
	LastCompleted     string  `json:"lastCompleted,omitempty"`
	LastSuccess       *bool   `json:"lastSuccess,omitempty"`
	LastOutput        string  `json:"lastOutput"`
}

type VersionReply struct {
	Version string `json:"version"`
}

func (j JobReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func (s StatusReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func (v VersionReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}
