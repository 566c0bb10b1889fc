package optimizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/elsanchez/krakguard/internal/domain"
	"github.com/elsanchez/krakguard/internal/snapshot"
)

const maxDownloadBytes = 256 << 20

// MediaWriter persiste un media sin disparar los eventos de guardado.
// Un resultado aplicado no debe volver a entrar al guard.
type MediaWriter interface {
	SaveSilently(ctx context.Context, media *domain.Media) error
}

// FileApplier implementa Applier reemplazando el archivo almacenado
type FileApplier struct {
	http      *http.Client
	mediaRoot string
	writer    MediaWriter
	now       func() time.Time
}

// Compiletime check: asegura que implementa la interfaz
var _ Applier = (*FileApplier)(nil)

// NewFileApplier crea un applier que escribe bajo mediaRoot
func NewFileApplier(mediaRoot string, writer MediaWriter, timeout time.Duration) *FileApplier {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &FileApplier{
		http:      &http.Client{Timeout: timeout},
		mediaRoot: mediaRoot,
		writer:    writer,
		now:       time.Now,
	}
}

// Save implementa Applier.Save
func (a *FileApplier) Save(ctx context.Context, asset domain.Asset, result *Result, wasFileChanged bool) error {
	media, ok := asset.(*domain.Media)
	if !ok || media == nil {
		return fmt.Errorf("unsupported asset type %T", asset)
	}
	if result == nil || !result.Success || result.KrakedURL == "" {
		return errors.New("result has no optimized file")
	}

	target, err := a.localPath(media.FileRef())
	if err != nil {
		return err
	}

	previousSize := snapshot.ReadInt(media, domain.PropertySize)

	written, err := a.download(ctx, result.KrakedURL, target)
	if err != nil {
		return fmt.Errorf("replace file: %w", err)
	}

	// El tamaño original solo se reinicia cuando subieron un archivo nuevo
	original := snapshot.ReadInt(media, domain.PropertyOriginalSize)
	if wasFileChanged || original == 0 {
		original = result.OriginalSize
		if original == 0 {
			original = previousSize
		}
	}

	media.SetValue(domain.PropertySize, written)
	media.SetValue(domain.PropertyOriginalSize, original)
	media.SetValue(domain.PropertySavedBytes, max(original-written, 0))
	media.SetValue(domain.PropertyKrakStatus, a.now().UTC().Format(time.RFC3339))

	if err := a.writer.SaveSilently(ctx, media); err != nil {
		return fmt.Errorf("persist media %d: %w", media.ID, err)
	}
	return nil
}

// localPath resuelve la referencia dentro de mediaRoot
func (a *FileApplier) localPath(ref string) (string, error) {
	if a.mediaRoot == "" {
		return "", errors.New("media root is not configured")
	}
	if ref == "" {
		return "", errors.New("media has no stored file")
	}

	root := filepath.Clean(a.mediaRoot)
	target := filepath.Join(root, filepath.FromSlash(strings.TrimLeft(ref, "/")))
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", fmt.Errorf("file reference escapes media root: %s", ref)
	}
	return target, nil
}

// download escribe url en target vía archivo temporal + rename
func (a *FileApplier) download(ctx context.Context, url, target string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download: unexpected status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, fmt.Errorf("create media dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".krak-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		return 0, fmt.Errorf("rename: %w", err)
	}
	return n, nil
}
