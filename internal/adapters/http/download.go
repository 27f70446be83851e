package http

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/pressplay/arcade/internal/domain"
)

// download streams the game bundle as a zip archive. The archive is built
// on the fly; nothing is staged on disk. Counters update after the stream
// starts, so a half-sent archive still counts as a download.
func (a *PlayerAPI) download(c *gin.Context) {
	ctx := c.Request.Context()
	id := domain.GameID(c.Param("id"))
	rec, err := a.catalog.Get(ctx, id, c.Query("version"))
	if err != nil {
		writeError(c, err)
		return
	}

	name := fmt.Sprintf("%s-%s.zip", rec.Name, rec.Version.String())
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))

	zw := zip.NewWriter(c.Writer)
	if err := addDirToZip(zw, rec.BundleDir); err != nil {
		// Headers are gone already; all we can do is cut the stream.
		log.Error().Str("module", "adapters.http").Str("game", string(id)).
			Err(err).Msg("bundle stream failed")
		_ = zw.Close()
		c.Abort()
		return
	}
	if err := zw.Close(); err != nil {
		log.Error().Str("module", "adapters.http").Str("game", string(id)).
			Err(err).Msg("bundle stream failed")
		return
	}

	if err := a.catalog.RecordDownload(ctx, id); err != nil {
		log.Warn().Str("module", "adapters.http").Str("game", string(id)).
			Err(err).Msg("failed to bump download counter")
	}
	player := identity(c)
	acct, err := a.accounts.GetAccount(ctx, player)
	if err != nil {
		log.Warn().Str("module", "adapters.http").Str("username", player).
			Err(err).Msg("failed to load account after download")
		return
	}
	acct.MarkDownloaded(id)
	if err := a.accounts.PutAccount(ctx, acct); err != nil {
		log.Warn().Str("module", "adapters.http").Str("username", player).
			Err(err).Msg("failed to record download on account")
	}
}

// addDirToZip writes every regular file under root into zw, with paths
// relative to root.
func addDirToZip(zw *zip.Writer, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
}
