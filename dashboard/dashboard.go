// Package dashboard serves the browser view of a client.Controller: a page
// with the request list and detail panes, kept current over a websocket.
package dashboard

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/profclems/catchhook/client"
	"github.com/profclems/catchhook/protocol"
	"github.com/profclems/catchhook/render"
)

//go:embed assets
var assetsFS embed.FS

// AssetsPath is where the page script and stylesheet are served
const AssetsPath = "/ui/assets"

// viewerOpTimeout bounds refreshes and selections requested over the websocket
const viewerOpTimeout = 15 * time.Second

// Config holds dashboard configuration
type Config struct {
	Title string
	// WebhookURL is shown in the header. When empty it is derived from the
	// host the page was requested on.
	WebhookURL string
	Logger     *slog.Logger
}

// Dashboard renders controller state for browsers
type Dashboard struct {
	cfg    Config
	logger *slog.Logger
	hub    *Hub
	ctrl   *client.Controller
	now    func() time.Time

	unsubscribe func()
}

// New creates a dashboard. Bind must be called before serving.
func New(cfg Config) *Dashboard {
	if cfg.Title == "" {
		cfg.Title = "Catchhook"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dashboard{
		cfg:    cfg,
		logger: logger,
		hub:    NewHub(logger),
		now:    time.Now,
	}
}

// Bind attaches the controller: its state changes are pushed to viewers and
// viewer visibility drives its polling. The controller starts hidden until a
// visible viewer connects.
func (d *Dashboard) Bind(ctrl *client.Controller) {
	d.ctrl = ctrl
	d.hub.onVisibility = ctrl.SetVisible
	d.hub.onMessage = d.handleViewerMessage
	d.hub.onConnect = d.initialMessages
	d.unsubscribe = ctrl.Subscribe(d.onSnapshot)
	d.hub.syncVisibility()
}

// Close detaches from the controller
func (d *Dashboard) Close() {
	if d.unsubscribe != nil {
		d.unsubscribe()
		d.unsubscribe = nil
	}
}

// Viewers returns the number of connected viewers
func (d *Dashboard) Viewers() int {
	return d.hub.Len()
}

// Notify implements client.Notifier by showing a toast on every viewer
func (d *Dashboard) Notify(level client.Level, message string) {
	msg, err := protocol.NewMessage(protocol.MsgNotify, protocol.Notification{
		Level:   string(level),
		Message: message,
	})
	if err != nil {
		return
	}
	d.hub.Broadcast(msg)
}

// RegisterHTTP mounts the dashboard routes on r
func (d *Dashboard) RegisterHTTP(r chi.Router) {
	assets, _ := fs.Sub(assetsFS, "assets")

	r.Get("/", d.handlePage)
	r.Get("/ui/list", d.handleList)
	r.Get("/ui/detail", d.handleDetail)
	r.Post("/ui/refresh", d.handleRefresh)
	r.Post("/ui/select/{id}", d.handleSelect)
	r.Get("/ui/ws", d.hub.ServeWS)
	r.Handle(AssetsPath+"/*", http.StripPrefix(AssetsPath+"/", http.FileServerFS(assets)))
}

// Handler returns a router serving only the dashboard
func (d *Dashboard) Handler() http.Handler {
	r := chi.NewRouter()
	d.RegisterHTTP(r)
	return r
}

// Serve runs the dashboard on addr until ctx is done
func (d *Dashboard) Serve(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	d.logger.Info("dashboard listening", "url", "http://"+addr)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("dashboard server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (d *Dashboard) listView(snap client.Snapshot) render.ListView {
	view := render.ListView{Requests: snap.Requests, Now: d.now()}
	if snap.Selected != nil {
		view.Selected = snap.Selected.ID
	}
	return view
}

func (d *Dashboard) webhookURL(r *http.Request) string {
	if d.cfg.WebhookURL != "" {
		return d.cfg.WebhookURL
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/webhook"
}

func (d *Dashboard) handlePage(w http.ResponseWriter, r *http.Request) {
	snap := d.ctrl.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := render.Page(w, render.PageView{
		Title:      d.cfg.Title,
		WebhookURL: d.webhookURL(r),
		AssetsPath: AssetsPath,
		Interval:   d.ctrl.Interval(),
		Polling:    snap.Polling,
		List:       d.listView(snap),
		Detail:     snap.Selected,
	})
	if err != nil {
		d.logger.Error("failed to render page", "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
	}
}

func (d *Dashboard) handleList(w http.ResponseWriter, r *http.Request) {
	d.writeList(w, d.ctrl.Snapshot())
}

func (d *Dashboard) handleDetail(w http.ResponseWriter, r *http.Request) {
	d.writeDetail(w, d.ctrl.Snapshot().Selected)
}

func (d *Dashboard) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := d.ctrl.Refresh(r.Context(), client.TriggerManual); err != nil {
		http.Error(w, "Failed to load requests", http.StatusBadGateway)
		return
	}
	d.writeList(w, d.ctrl.Snapshot())
}

func (d *Dashboard) handleSelect(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	req, err := d.ctrl.Select(r.Context(), id)
	if errors.Is(err, client.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to load request details", http.StatusBadGateway)
		return
	}
	d.writeDetail(w, req)
}

func (d *Dashboard) writeList(w http.ResponseWriter, snap client.Snapshot) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := render.List(w, d.listView(snap)); err != nil {
		d.logger.Error("failed to render list", "error", err)
	}
}

func (d *Dashboard) writeDetail(w http.ResponseWriter, req *protocol.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := render.Detail(w, req); err != nil {
		d.logger.Error("failed to render detail", "error", err)
	}
}

// onSnapshot pushes fresh fragments to every viewer
func (d *Dashboard) onSnapshot(snap client.Snapshot) {
	for _, msg := range d.snapshotMessages(snap) {
		d.hub.Broadcast(msg)
	}
}

func (d *Dashboard) initialMessages() []*protocol.ViewerMessage {
	return d.snapshotMessages(d.ctrl.Snapshot())
}

func (d *Dashboard) snapshotMessages(snap client.Snapshot) []*protocol.ViewerMessage {
	msgs := make([]*protocol.ViewerMessage, 0, 3)

	if html, err := render.ListString(d.listView(snap)); err != nil {
		d.logger.Error("failed to render list", "error", err)
	} else if msg, err := protocol.NewMessage(protocol.MsgList, protocol.Fragment{HTML: html}); err == nil {
		msgs = append(msgs, msg)
	}

	if html, err := render.DetailString(snap.Selected); err != nil {
		d.logger.Error("failed to render detail", "error", err)
	} else if msg, err := protocol.NewMessage(protocol.MsgDetail, protocol.Fragment{HTML: html}); err == nil {
		msgs = append(msgs, msg)
	}

	if msg, err := protocol.NewMessage(protocol.MsgStatus, protocol.Status{
		Polling:  snap.Polling,
		Interval: int(d.ctrl.Interval().Milliseconds()),
	}); err == nil {
		msgs = append(msgs, msg)
	}

	return msgs
}

func (d *Dashboard) handleViewerMessage(viewerID string, msg *protocol.ViewerMessage) {
	switch msg.Type {
	case protocol.MsgRefresh:
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), viewerOpTimeout)
			defer cancel()
			_ = d.ctrl.Refresh(ctx, client.TriggerManual)
		}()
	case protocol.MsgSelect:
		var sel protocol.Select
		if err := msg.Decode(&sel); err != nil {
			d.logger.Debug("invalid select message", "viewer", viewerID, "error", err)
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), viewerOpTimeout)
			defer cancel()
			_, _ = d.ctrl.Select(ctx, sel.ID)
		}()
	default:
		d.logger.Debug("unknown viewer message", "viewer", viewerID, "type", msg.Type)
	}
}
