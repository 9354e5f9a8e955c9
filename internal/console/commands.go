package console

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/outofsight/internal/common"
	"github.com/dmitrijs2005/outofsight/internal/server/auth"
	"github.com/dmitrijs2005/outofsight/internal/server/services"
)

var (
	errNotLoggedIn = errors.New("not logged in, use: login <token>")
	errUsage       = errors.New("usage")
)

func usage(s string) error {
	return fmt.Errorf("%w: %s", errUsage, s)
}

func (c *Console) login(args []string) error {
	if len(args) != 1 {
		return usage("login <token>")
	}
	userID, err := auth.GetUserIDFromToken(args[0], c.secretKey)
	if err != nil {
		return err
	}
	c.ownerID = userID
	c.println("Logged in as", userID)
	return nil
}

func (c *Console) upload(ctx context.Context, args []string, background bool) error {
	if len(args) == 0 {
		return usage("upload <path>...")
	}

	pass, err := readPassphrase(c.out, true)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pass)

	var failed int
	for _, path := range args {
		if err := c.uploadOne(ctx, path, string(pass), background); err != nil {
			failed++
			c.printf("%s: %v\n", path, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(args))
	}
	return nil
}

func (c *Console) uploadOne(ctx context.Context, path, pass string, background bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	req := services.UploadRequest{
		OwnerID:      c.ownerID,
		Filename:     filepath.Base(path),
		Body:         f,
		DeclaredSize: info.Size(),
		Passphrase:   pass,
	}

	call := c.transfers.Upload
	if background {
		call = c.transfers.Submit
	}
	file, err := call(ctx, req)
	if err != nil {
		return err
	}
	c.printf("%s: %s (%s)\n", path, file.ID, file.Status)
	return nil
}

func (c *Console) download(ctx context.Context, args []string) (err error) {
	if len(args) < 2 || len(args) > 3 || (len(args) == 3 && args[2] != "plain") {
		return usage("download <id> <dest> [plain]")
	}
	id, dest := args[0], args[1]

	req := services.DownloadRequest{FileID: id, OwnerID: c.ownerID}
	if len(args) == 3 {
		pass, err := readPassphrase(c.out, false)
		if err != nil {
			return err
		}
		defer common.WipeByteArray(pass)
		req.Passphrase = string(pass)
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(dest)
		}
	}()

	file, err := c.transfers.Download(ctx, req, out)
	if err != nil {
		return err
	}
	c.printf("%s (%s) written to %s\n", file.ID, file.Filename, dest)
	return nil
}

func (c *Console) delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("delete <id>")
	}
	if err := c.transfers.Delete(ctx, args[0], c.ownerID); err != nil {
		return err
	}
	c.println("Deleted", args[0])
	return nil
}

func (c *Console) list(ctx context.Context, args []string) error {
	all := len(args) == 1 && args[0] == "all"
	if len(args) > 1 || (len(args) == 1 && !all) {
		return usage("list [all]")
	}

	files, err := c.transfers.List(ctx, c.ownerID, all)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		c.println("No files")
		return nil
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tSIZE KB\tSTATUS\tCREATED")
	for _, f := range files {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%.1f\t%s\t%s\n",
			f.ID, f.Filename, f.SizeKB, f.Status, f.CreatedAt.Format(time.DateTime))
	}
	return tw.Flush()
}

func (c *Console) status(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("status <id>")
	}

	view, err := c.transfers.Get(ctx, args[0], c.ownerID)
	if err != nil {
		return err
	}

	c.printf("%s %s: %s\n", view.File.ID, view.File.Filename, view.File.Status.Description())
	for _, ev := range view.History {
		c.printf("  %s  %s\n", ev.CreatedAt.Format(time.RFC3339), ev.Status)
	}
	return nil
}
