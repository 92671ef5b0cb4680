package watermark

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ypk/contentguard/internal/db"
	"github.com/ypk/contentguard/internal/model"
)

// Compositor stamps asset bytes with a visible overlay and an invisible
// trace payload. Stateless apart from the on-disk output cache; all
// configuration arrives with each request.
type Compositor struct {
	Pool     *Pool
	DB       *sql.DB
	DataDir  string
	FontPath string

	// Clock is swappable for tests; defaults to time.Now.
	Clock func() time.Time
}

// StampRequest carries one compositing job.
type StampRequest struct {
	Asset     *model.ContentAsset
	Config    model.WatermarkConfig
	ViewerID  string
	GrantID   string
	InputPath string
}

func (c *Compositor) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

// Stamp produces a watermarked copy and returns its path. Output for a
// cacheable template is reused across requests by the same viewer. Runs
// on the bounded pool; returns ErrOverloaded when the pool cannot take
// the job, and the caller must then deny rather than serve raw bytes.
func (c *Compositor) Stamp(ctx context.Context, req StampRequest) (string, error) {
	text := RenderText(req.Config.TextTemplate, req.Asset.ID, req.ViewerID, req.GrantID, c.now())
	cacheable := Cacheable(req.Config.TextTemplate)

	outPath := c.outputPath(req, text, cacheable)
	if cacheable {
		if _, err := os.Stat(outPath); err == nil {
			return outPath, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return "", fmt.Errorf("create stamp dir: %w", err)
	}

	err := c.Pool.Do(ctx, func(ctx context.Context) error {
		return c.stamp(ctx, req, text, outPath)
	})
	if err != nil {
		if err != ErrOverloaded {
			os.Remove(outPath)
		}
		return "", err
	}
	return outPath, nil
}

func (c *Compositor) stamp(ctx context.Context, req StampRequest, text, outPath string) error {
	switch req.Asset.FileType {
	case "video":
		return c.stampVideo(ctx, req, text, outPath)
	default:
		// Images and documents share the ImageMagick path; magick
		// annotates every page of a multi-page document.
		return c.stampImage(ctx, req, text, outPath)
	}
}

func (c *Compositor) stampImage(ctx context.Context, req StampRequest, text, outPath string) error {
	algorithm := "dwtDctSvd-go"
	visibleOut := outPath
	chainInvisible := req.Asset.FileType == "image"
	if chainInvisible {
		// Visible layer renders to a lossless intermediate so the
		// invisible embed is not degraded by double JPEG compression.
		visibleOut = outPath + ".visible.png"
	}

	visErr := StampImage(ctx, ImageParams{
		InputPath:  req.InputPath,
		OutputPath: visibleOut,
		Text:       text,
		FontPath:   c.FontPath,
		Config:     req.Config,
	})

	if !chainInvisible {
		// Documents carry the visible layer only; there is no
		// per-page invisible embed path.
		if visErr != nil {
			return visErr
		}
		return c.recordIndex(req, "visible-only")
	}

	invisibleIn := visibleOut
	if visErr != nil {
		// The copy stays traceable through the invisible payload even
		// when the visible layer could not be rendered.
		slog.Warn("visible stamp failed, embedding trace payload only",
			"asset", req.Asset.ID, "error", visErr)
		invisibleIn = req.InputPath
		algorithm = "invisible-only"
	}

	payloadHex := PayloadHex(req.GrantID, req.Asset.ID)
	if err := EmbedImageFile(ctx, invisibleIn, outPath, payloadHex, 92); err != nil {
		os.Remove(visibleOut)
		return fmt.Errorf("embed trace payload: %w", err)
	}
	if visErr == nil {
		os.Remove(visibleOut)
	}
	return c.recordIndex(req, algorithm)
}

func (c *Compositor) stampVideo(ctx context.Context, req StampRequest, text, outPath string) error {
	err := StampVideo(ctx, VideoParams{
		InputPath:  req.InputPath,
		OutputPath: outPath,
		Text:       text,
		FontPath:   c.FontPath,
		Config:     req.Config,
	})
	if err != nil {
		return err
	}
	// Per-frame invisible embedding is not implemented for video; the
	// burn-in overlay is the traceable marker.
	return c.recordIndex(req, "visible-only")
}

func (c *Compositor) recordIndex(req StampRequest, algorithm string) error {
	payloadHex := PayloadHex(req.GrantID, req.Asset.ID)
	err := db.InsertWatermarkIndex(c.DB, payloadHex, GrantHashHex(req.GrantID),
		req.Asset.ID, req.ViewerID, req.GrantID, algorithm)
	if err != nil {
		// Index writes are bookkeeping for leak tracing; the stamped
		// copy itself is already produced.
		slog.Error("record watermark index", "asset", req.Asset.ID, "error", err)
	}
	return nil
}

// outputPath derives a stable location for the stamped copy. Cacheable
// outputs key on the rendered text so a viewer's repeat requests reuse
// the same file; volatile templates key on the grant and are unique per
// request.
func (c *Compositor) outputPath(req StampRequest, text string, cacheable bool) string {
	key := req.GrantID
	if cacheable {
		h := sha256.Sum256([]byte(req.Asset.ID + "\x00" + req.ViewerID + "\x00" + text))
		key = hex.EncodeToString(h[:12])
	}
	return filepath.Join(c.DataDir, "stamped", req.Asset.ID, key+c.outputExt(req.Asset))
}

func (c *Compositor) outputExt(a *model.ContentAsset) string {
	switch a.FileType {
	case "video":
		return ".mp4"
	case "image":
		return ".jpg"
	default:
		ext := filepath.Ext(a.Filename)
		if ext == "" {
			ext = ".bin"
		}
		return ext
	}
}
