// BSD 2-Clause License
//
// Copyright (c) 2020, Andrea Giacomo Baldan
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
//
// * Redistributions of source code must retain the above copyright notice, this
//   list of conditions and the following disclaimer.
//
// * Redistributions in binary form must reproduce the above copyright notice,
//   this list of conditions and the following disclaimer in the documentation
//   and/or other materials provided with the distribution.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE LIABLE
// FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL
// DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER
// CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY,
// OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.

package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/codepr/narwhal/pkg/cellexec"
	"github.com/codepr/narwhal/pkg/endpoint"
	"github.com/google/go-github/v32/github"
)

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

type interactiveRequest struct {
	CellID  string `json:"cellId"`
	Channel string `json:"channel"`
	Code    string `json:"code"`
}

// handleInteractive implements spec.md section 6's interactive run
// endpoint: language=python submits to the console runner, language=shell
// submits "/bin/bash -c <code>" to the job loop.
func (a *App) handleInteractive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req interactiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	switch r.URL.Query().Get("language") {
	case "python":
		if err := a.console.Submit(req.CellID, req.Channel, req.Code); err != nil {
			a.metrics.RecordRejection("console", rejectReason(err))
			writeError(w, http.StatusConflict, err)
			return
		}
		a.metrics.RecordSubmission("console")
	case "shell":
		if _, err := a.beginCell(req.CellID, req.Channel); err != nil {
			a.metrics.RecordRejection("jobloop", rejectReason(err))
			writeError(w, http.StatusConflict, err)
			return
		}
		if err := a.jobs.Submit(req.CellID, req.Channel, []string{"/bin/bash", "-c", req.Code}, nil); err != nil {
			a.finishCell(req.CellID, -1)
			a.metrics.RecordRejection("jobloop", rejectReason(err))
			writeError(w, http.StatusConflict, err)
			return
		}
		a.metrics.RecordSubmission("jobloop")
	default:
		writeError(w, http.StatusBadRequest, errors.New("language must be shell or python"))
		return
	}

	w.Write([]byte("Ok"))
}

type fileRunRequest struct {
	CellID   string `json:"cellId"`
	Channel  string `json:"channel"`
	FilePath string `json:"filePath"`
}

// handleFileRun implements spec.md section 6's file run endpoint:
// validates filePath resolves under the file root and ends in .py, then
// submits <interpreter> -u <full_path> with PYTHONPATH set to the file
// root.
func (a *App) handleFileRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req fileRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !strings.HasSuffix(req.FilePath, ".py") {
		writeError(w, http.StatusBadRequest, errors.New("filePath must end with .py"))
		return
	}

	fullPath := a.files.Resolve(req.FilePath)
	argv := []string{defaultPythonInterpreter, "-u", fullPath}
	env := map[string]string{"PYTHONPATH": a.cfg.FileRootDir}

	if _, err := a.beginCell(req.CellID, req.Channel); err != nil {
		a.metrics.RecordRejection("jobloop", rejectReason(err))
		writeError(w, http.StatusConflict, err)
		return
	}
	if err := a.jobs.Submit(req.CellID, req.Channel, argv, env); err != nil {
		a.finishCell(req.CellID, -1)
		a.metrics.RecordRejection("jobloop", rejectReason(err))
		writeError(w, http.StatusConflict, err)
		return
	}
	a.metrics.RecordSubmission("jobloop")
	w.Write([]byte("Ok"))
}

type fileWriteRequest struct {
	FilePath string `json:"filePath"`
	Content  string `json:"content"`
}

// handleFiles serves GET /files?path=... (read) and POST /files (write),
// both secured against the file store's root via SecureRelativePath.
func (a *App) handleFiles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		relPath := r.URL.Query().Get("path")
		content, err := a.files.Read(relPath)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		w.Write(content)
	case http.MethodPost:
		var req fileWriteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		secured, err := a.files.Write(req.FilePath, []byte(req.Content))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"filePath": secured})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleEndpointConfigs serves POST /endpoint-configs (save a new named
// endpoint configuration).
func (a *App) handleEndpointConfigs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var cfg endpoint.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.endpoints.Save(cfg); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Write([]byte("Ok"))
}

// handleEndpointConfigByName serves GET /endpoint-configs/{name}.
func (a *App) handleEndpointConfigByName(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/endpoint-configs/")
	cfg, err := a.endpoints.Get(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	body, err := cfg.AsJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// handleEndpointRun serves POST /endpoint-runs/{endpointName}, body
// {cellId,channel}.
func (a *App) handleEndpointRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/endpoint-runs/")
	var req interactiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := a.beginCell(req.CellID, req.Channel); err != nil {
		a.metrics.RecordRejection("endpoint", rejectReason(err))
		writeError(w, http.StatusConflict, err)
		return
	}
	if err := a.epRunner.Run(name, req.CellID, req.Channel); err != nil {
		a.finishCell(req.CellID, -1)
		a.metrics.RecordRejection("endpoint", rejectReason(err))
		writeError(w, http.StatusConflict, err)
		return
	}
	a.metrics.RecordSubmission("endpoint")
	w.Write([]byte("Ok"))
}

type containerRunRequest struct {
	CellID  string            `json:"cellId"`
	Channel string            `json:"channel"`
	Argv    []string          `json:"argv"`
	Env     map[string]string `json:"env"`
}

// handleContainerRun submits argv to run inside an ephemeral container
// of the image the App was configured with, rather than a bare
// os/exec child. Requires the App to have been built with a non-empty
// container image; otherwise every submission is rejected.
func (a *App) handleContainerRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if a.container == nil {
		writeError(w, http.StatusConflict, errors.New("no container backend configured"))
		return
	}
	var req containerRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if _, err := a.beginCell(req.CellID, req.Channel); err != nil {
		a.metrics.RecordRejection("containerbackend", rejectReason(err))
		writeError(w, http.StatusConflict, err)
		return
	}
	a.metrics.RecordSubmission("containerbackend")
	go func() {
		// The request context ends when this handler returns, so the run
		// gets its own.
		rc, err := a.container.Run(context.Background(), req.CellID, req.Argv, req.Env, a.router)
		if err != nil {
			a.router.Publish(req.CellID, cellexec.KeyErr, err.Error())
			rc = -1
		}
		a.finishCell(req.CellID, rc)
	}()
	w.Write([]byte("Ok"))
}

// githubWebhookSecret is the shared secret validated against the
// X-Hub-Signature header, matching agent/handlers.go's hardcoded
// "my-secret-key"; kept as a var (not const) so tests can override it.
var githubWebhookSecret = []byte("narwhal-webhook-secret")

// handleGithubWebhook validates a GitHub push-event payload and, on a
// push, re-runs the endpoint whose name matches the repository's full
// name -- "a push to this repo re-executes its endpoint".
func (a *App) handleGithubWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	payload, err := github.ValidatePayload(r, githubWebhookSecret)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer r.Body.Close()

	event, err := github.ParseWebHook(github.WebHookType(r), payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	switch e := event.(type) {
	case *github.PushEvent:
		name := e.GetRepo().GetFullName()
		if err := a.epRunner.Run(name, name, name); err != nil {
			a.logger.Printf("webhook: unable to re-run endpoint %s: %v", name, err)
		}
	default:
		a.logger.Printf("webhook: ignored event type %s", github.WebHookType(r))
	}
	w.WriteHeader(http.StatusOK)
}

func (a *App) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("pong"))
}

func (a *App) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"env":         a.cfg.Env,
		"modes":       a.cfg.Modes,
		"languages":   a.cfg.Languages,
		"consoleBusy": a.console.IsBusy(),
	})
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, cellexec.ErrConsoleBusy), errors.Is(err, cellexec.ErrCellBusy):
		return "busy"
	case errors.Is(err, cellexec.ErrQueueClosed):
		return "queue_full"
	case errors.Is(err, cellexec.ErrNotStarted):
		return "not_started"
	default:
		return "unknown"
	}
}
