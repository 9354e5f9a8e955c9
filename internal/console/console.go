// Package console implements the operator REPL that drives the transfer
// pipeline in-process.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/outofsight/internal/logging"
	"github.com/dmitrijs2005/outofsight/internal/server/models"
	"github.com/dmitrijs2005/outofsight/internal/server/services"
)

// Transfers is the part of services.TransferService the console uses.
type Transfers interface {
	Upload(ctx context.Context, req services.UploadRequest) (*models.File, error)
	Submit(ctx context.Context, req services.UploadRequest) (*models.File, error)
	Download(ctx context.Context, req services.DownloadRequest, sink io.Writer) (*models.File, error)
	Delete(ctx context.Context, fileID, ownerID string) error
	Get(ctx context.Context, fileID, ownerID string) (*services.FileView, error)
	List(ctx context.Context, ownerID string, includeHidden bool) ([]*models.File, error)
}

type Console struct {
	transfers Transfers
	secretKey []byte
	ownerID   string

	in     *bufio.Scanner
	out    io.Writer
	logger logging.Logger
}

func New(t Transfers, secretKey string, in io.Reader, out io.Writer, logger logging.Logger) *Console {
	return &Console{
		transfers: t,
		secretKey: []byte(secretKey),
		in:        bufio.NewScanner(in),
		out:       out,
		logger:    logger.With("module", "console"),
	}
}

func (c *Console) isLoggedIn() bool {
	return c.ownerID != ""
}

func (c *Console) prompt() string {
	if c.isLoggedIn() {
		return fmt.Sprintf("oos [%s]> ", c.ownerID)
	}
	return "oos> "
}

func (c *Console) println(a ...any) {
	_, _ = fmt.Fprintln(c.out, a...)
}

func (c *Console) printf(format string, a ...any) {
	_, _ = fmt.Fprintf(c.out, format, a...)
}

// Run reads commands until EOF, "exit" or ctx cancellation. Command errors
// are printed and the loop goes on.
//
// Commands:
//
//	help                          show available commands
//	login <token>                 act as the owner named in an access token
//	upload <path>...              store files, waiting for each pipeline
//	submit <path>...              store files in the background
//	download <id> <dest> [plain]  fetch the archive, or the decrypted file
//	delete <id>                   remove a file
//	list [all]                    list files, "all" includes failed and deleted
//	status <id>                   show a file's status history
//	logout                        forget the current owner
//	exit | quit                   leave the program
func (c *Console) Run(ctx context.Context) {
	c.println("OutOfSight console (type 'help' for commands)")

	for {
		if ctx.Err() != nil {
			return
		}
		_, _ = fmt.Fprint(c.out, c.prompt())
		if !c.in.Scan() {
			return
		}
		parts := strings.Fields(c.in.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		if cmd == "exit" || cmd == "quit" {
			c.println("Bye!")
			return
		}

		if err := c.dispatch(ctx, cmd, args); err != nil {
			c.println("error:", err)
		}
	}
}

func (c *Console) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help":
		c.help()
		return nil
	case "login":
		return c.login(args)
	}

	if !c.isLoggedIn() {
		if isKnown(cmd) {
			return errNotLoggedIn
		}
		c.println("Unknown command:", cmd)
		return nil
	}

	switch cmd {
	case "upload":
		return c.upload(ctx, args, false)
	case "submit":
		return c.upload(ctx, args, true)
	case "download":
		return c.download(ctx, args)
	case "delete":
		return c.delete(ctx, args)
	case "l", "list":
		return c.list(ctx, args)
	case "status":
		return c.status(ctx, args)
	case "logout":
		c.ownerID = ""
		return nil
	default:
		c.println("Unknown command:", cmd)
		return nil
	}
}

func isKnown(cmd string) bool {
	switch cmd {
	case "upload", "submit", "download", "delete", "l", "list", "status", "logout":
		return true
	}
	return false
}

func (c *Console) help() {
	if c.isLoggedIn() {
		c.println("Available commands: upload, submit, download, delete, (l)ist, status, logout, exit")
	} else {
		c.println("Available commands: login <token>, exit")
	}
}
