package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"battery-passport/internal/auth"
	"battery-passport/internal/capture"
	"battery-passport/internal/config"
	"battery-passport/internal/diagnostics"
	"battery-passport/internal/domain"
	"battery-passport/internal/logging"
	"battery-passport/internal/passport"
	"battery-passport/internal/pending"
	"battery-passport/internal/qr"
	"battery-passport/internal/scan"
	"battery-passport/internal/storage"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

const requestTimeout = 30 * time.Second

var imageDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Images",
		Pattern:     "*.png;*.jpg;*.jpeg",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// App wires configuration, the scanner, the passport API and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Diagnostics domain.DiagnosticReport

	logger  zerolog.Logger
	assets  fs.FS
	checker *diagnostics.Checker
	events  *scan.EventBus
	getenv  func(string) string

	mu       sync.Mutex
	scanner  *scan.Scanner
	passport *passport.Client
	blobs    *storage.Store
	dataDir  string
	session  *auth.Session
	queue    *pending.Queue

	ctxMu      sync.RWMutex
	runtimeCtx context.Context
}

// LoginResult is the signed-in user and the page to land on.
type LoginResult struct {
	User domain.User `json:"user"`
	Home string      `json:"home"`
}

// EvaluationResult carries model scores and the winning disposition.
type EvaluationResult struct {
	Scores    domain.Evaluation `json:"scores"`
	Best      string            `json:"best,omitempty"`
	BestScore float64           `json:"bestScore,omitempty"`
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	settingsPath, err := config.DefaultPath()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}

	store := config.NewJSONStore(settingsPath)
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settings = config.ApplyEnv(settings, os.Getenv)

	logger := logging.New(logging.Options{Level: settings.LogLevel})

	blobs, err := storage.OpenDir(settings.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open local storage: %w", err)
	}

	checker := diagnostics.NewChecker()
	app := &App{
		Settings:    settings,
		Store:       store,
		Diagnostics: checker.Run(settings),
		logger:      logger,
		assets:      assets,
		checker:     checker,
		events:      scan.NewEventBus(500),
		getenv:      os.Getenv,
		blobs:       blobs,
		dataDir:     settings.DataDir,
		session:     auth.NewSession(blobs, logger),
		queue:       pending.NewQueue(blobs, logger),
	}
	app.scanner = app.buildScanner(settings)
	app.passport = passport.NewClient(settings.APIBaseURL, logger)

	if app.Diagnostics.HasFailures {
		logger.Warn().Msg("startup diagnostics reported failures")
	}
	return app, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Battery Passport",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.ctxMu.Lock()
	defer a.ctxMu.Unlock()
	a.runtimeCtx = ctx
}

// Shutdown ends any scan and releases local resources.
func (a *App) Shutdown(ctx context.Context) {
	a.ctxMu.Lock()
	a.runtimeCtx = nil
	a.ctxMu.Unlock()

	waitCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if scanner := a.currentScanner(); scanner != nil {
		if err := scanner.Shutdown(waitCtx); err != nil {
			a.logger.Warn().Err(err).Msg("scan did not stop in time")
		}
	}

	if client := a.client(); client != nil {
		_ = client.Close()
	}

	a.mu.Lock()
	blobs := a.blobs
	a.blobs = nil
	a.mu.Unlock()
	if blobs != nil {
		if err := blobs.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close local storage")
		}
	}
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = a.withEnv(settings)
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then rebuilds the scanner,
// API client and local storage. Environment overrides stay in effect but are
// not written to the settings file.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.Normalize(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.applySettings(normalized)
	return normalized, nil
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	return a.refreshDiagnosticsFromSettings(settings), nil
}

// OpenDataFolder opens the local data directory in the file manager.
func (a *App) OpenDataFolder() error {
	a.mu.Lock()
	target := a.Settings.DataDir
	a.mu.Unlock()
	if strings.TrimSpace(target) == "" {
		return fmt.Errorf("data directory is empty")
	}

	if _, err := os.Stat(target); err != nil {
		return fmt.Errorf("resolve data directory: %w", err)
	}
	return openInFileManager(target)
}

// Login signs in with a role and returns its landing page.
func (a *App) Login(role string) (LoginResult, error) {
	ctx, cancel := a.requestContext()
	defer cancel()

	user, err := a.authSession().Login(ctx, domain.Role(role))
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{User: user, Home: auth.HomePath(user.Role)}, nil
}

// Logout signs out and ends any scan in progress.
func (a *App) Logout() error {
	if scanner := a.currentScanner(); scanner != nil {
		scanner.Stop()
	}

	ctx, cancel := a.requestContext()
	defer cancel()
	return a.authSession().Logout(ctx)
}

// CurrentUser returns the signed-in user, or nil.
func (a *App) CurrentUser() (*domain.User, error) {
	ctx, cancel := a.requestContext()
	defer cancel()
	return a.authSession().Current(ctx)
}

// Authorize applies the route guard to path for the signed-in user.
func (a *App) Authorize(path string) (auth.Decision, error) {
	user, err := a.CurrentUser()
	if err != nil {
		return auth.Decision{}, err
	}
	return auth.AuthorizePath(user, path), nil
}

// StartScan begins a camera scan. The outcome arrives as scan:event pushes;
// capability failures are reported in the returned snapshot.
func (a *App) StartScan(label string) (scan.Snapshot, error) {
	scanner := a.currentScanner()
	if scanner == nil {
		return scan.Snapshot{}, fmt.Errorf("scanner is not configured")
	}

	snap, err := scanner.Start(label, func(value string) {
		a.emit("scan:result", map[string]string{"label": strings.TrimSpace(label), "value": value})
	})
	if err != nil && !errors.Is(err, scan.ErrUnsupported) {
		return snap, err
	}
	return snap, nil
}

// StopScan ends the current scan and clears its error.
func (a *App) StopScan() scan.Snapshot {
	scanner := a.currentScanner()
	if scanner == nil {
		return scan.Snapshot{State: domain.ScanStateIdle}
	}
	scanner.Stop()
	return scanner.Snapshot()
}

// ScanState returns the observable scanner state.
func (a *App) ScanState() scan.Snapshot {
	scanner := a.currentScanner()
	if scanner == nil {
		return scan.Snapshot{State: domain.ScanStateIdle}
	}
	return scanner.Snapshot()
}

// ScanEvents returns all scan events with sequence greater than sinceSeq.
func (a *App) ScanEvents(sinceSeq int64) []scan.Event {
	return a.events.Since(sinceSeq)
}

// ScanImageFile decodes a QR code from an image picked in a file dialog.
func (a *App) ScanImageFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select QR code image",
		Filters: imageDialogFilter,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(path) == "" {
		return "", nil
	}

	return decodeImageFile(ctx, strings.TrimSpace(path))
}

// FetchBatteryStatus returns the owner-facing status of a battery.
func (a *App) FetchBatteryStatus(batteryID string) (domain.BatteryStatus, error) {
	ctx, cancel := a.requestContext()
	defer cancel()
	return a.client().FetchStatus(ctx, batteryID)
}

// FetchBatteryDetails returns the garage view of a battery.
func (a *App) FetchBatteryDetails(batteryID string) (domain.BatteryDetails, error) {
	ctx, cancel := a.requestContext()
	defer cancel()
	return a.client().FetchDetails(ctx, batteryID)
}

// CreateBattery registers a battery with its first measurements.
func (a *App) CreateBattery(payload domain.CreateBatteryPayload) (domain.CreateBatteryResponse, error) {
	ctx, cancel := a.requestContext()
	defer cancel()
	return a.client().CreateBattery(ctx, payload)
}

// UpdateMeasurements saves corrected measurements and returns the refreshed record.
func (a *App) UpdateMeasurements(batteryID string, update domain.MeasurementUpdate) (domain.BatteryDetails, error) {
	ctx, cancel := a.requestContext()
	defer cancel()

	client := a.client()
	if err := client.UpdateMeasurements(ctx, batteryID, update); err != nil {
		return domain.BatteryDetails{}, err
	}
	return client.FetchDetails(ctx, batteryID)
}

// EvaluateBattery scores dispositions for a battery. A blank market id uses the configured one.
func (a *App) EvaluateBattery(batteryID, marketID string) (EvaluationResult, error) {
	if strings.TrimSpace(marketID) == "" {
		a.mu.Lock()
		marketID = a.Settings.MarketID
		a.mu.Unlock()
	}

	ctx, cancel := a.requestContext()
	defer cancel()

	scores, err := a.client().Evaluate(ctx, domain.EvaluationRequest{ID: batteryID, MarketID: marketID})
	if err != nil {
		return EvaluationResult{}, err
	}

	result := EvaluationResult{Scores: scores}
	if name, score, ok := scores.Best(); ok {
		result.Best = name
		result.BestScore = score
	}
	return result, nil
}

// QueueStatusChange signals a proposed lifecycle status to the battery owner.
func (a *App) QueueStatusChange(batteryID, status string) (*domain.PendingStatusRequest, error) {
	ctx, cancel := a.requestContext()
	defer cancel()
	return a.pendingQueue().Queue(ctx, batteryID, domain.LifecycleStatus(status))
}

// PendingStatus returns the queued status change for a battery, or nil.
func (a *App) PendingStatus(batteryID string) (*domain.PendingStatusRequest, error) {
	ctx, cancel := a.requestContext()
	defer cancel()
	return a.pendingQueue().Get(ctx, batteryID)
}

// ClearPendingStatus drops the queued status change for a battery.
func (a *App) ClearPendingStatus(batteryID string) error {
	ctx, cancel := a.requestContext()
	defer cancel()
	return a.pendingQueue().Clear(ctx, batteryID)
}

// ListPendingStatus returns every queued status change.
func (a *App) ListPendingStatus() ([]domain.PendingStatusRequest, error) {
	ctx, cancel := a.requestContext()
	defer cancel()
	return a.pendingQueue().List(ctx)
}

// buildScanner wires the camera, detector and preview for settings.
func (a *App) buildScanner(settings domain.Settings) *scan.Scanner {
	camera := capture.NewFFmpegCamera(capture.FFmpegOptions{
		Device:      settings.CameraDevice,
		InputFormat: settings.CameraFormat,
		FrameRate:   settings.FrameRate,
		Logger:      a.logger,
	})

	return scan.New(scan.Options{
		Camera:      camera,
		NewDetector: qr.NewDetectorFactory(settings.Formats),
		Surface:     newPreviewSurface(a.emit, previewInterval),
		Events:      a.events,
		OnEvent:     a.publishScanEvent,
		Logger:      a.logger,
	})
}

// applySettings swaps in components built from settings and refreshes
// diagnostics. Storage is reopened only when the data directory changed.
func (a *App) applySettings(settings domain.Settings) {
	settings = a.withEnv(settings)
	scanner := a.buildScanner(settings)
	client := passport.NewClient(settings.APIBaseURL, a.logger)
	blobs := a.openStorage(settings.DataDir)

	a.mu.Lock()
	oldScanner, oldClient := a.scanner, a.passport
	a.scanner, a.passport = scanner, client
	var oldBlobs *storage.Store
	if blobs != nil {
		oldBlobs = a.blobs
		a.blobs = blobs
		a.dataDir = settings.DataDir
		a.session = auth.NewSession(blobs, a.logger)
		a.queue = pending.NewQueue(blobs, a.logger)
	}
	a.mu.Unlock()

	if oldScanner != nil {
		oldScanner.Stop()
	}
	if oldClient != nil {
		_ = oldClient.Close()
	}
	if oldBlobs != nil {
		if err := oldBlobs.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close previous local storage")
		}
	}
	a.refreshDiagnosticsFromSettings(settings)
}

// openStorage opens the store in dir when it differs from the one in use.
// It returns nil when nothing changed or the new directory cannot be opened.
func (a *App) openStorage(dir string) *storage.Store {
	a.mu.Lock()
	current := a.dataDir
	a.mu.Unlock()
	if dir == current {
		return nil
	}

	blobs, err := storage.OpenDir(dir)
	if err != nil {
		a.logger.Warn().Err(err).Str("dir", dir).Msg("keep previous local storage")
		return nil
	}
	a.logger.Info().Str("dir", dir).Msg("local storage moved")
	return blobs
}

// withEnv applies environment overrides on top of persisted settings.
func (a *App) withEnv(settings domain.Settings) domain.Settings {
	getenv := a.getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	return config.ApplyEnv(settings, getenv)
}

// publishScanEvent pushes scanner events to the UI.
func (a *App) publishScanEvent(event scan.Event) {
	a.emit("scan:event", event)
}

// emit sends a runtime push notification when the UI is attached.
func (a *App) emit(name string, data ...interface{}) {
	a.ctxMu.RLock()
	ctx := a.runtimeCtx
	a.ctxMu.RUnlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, name, data...)
	}
}

func (a *App) currentScanner() *scan.Scanner {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scanner
}

func (a *App) client() *passport.Client {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.passport
}

func (a *App) authSession() *auth.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

func (a *App) pendingQueue() *pending.Queue {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.queue
}

// requestContext bounds one bound-method call.
func (a *App) requestContext() (context.Context, context.CancelFunc) {
	a.ctxMu.RLock()
	parent := a.runtimeCtx
	a.ctxMu.RUnlock()
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, requestTimeout)
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.ctxMu.RLock()
	defer a.ctxMu.RUnlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// decodeImageFile returns the QR payload in an image file.
func decodeImageFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	codes, err := qr.NewDetector().Detect(ctx, img)
	if err != nil {
		return "", err
	}
	for _, code := range codes {
		if value := strings.TrimSpace(code.RawValue); value != "" {
			return value, nil
		}
	}
	return "", fmt.Errorf("no QR code found in %s", filepath.Base(path))
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
