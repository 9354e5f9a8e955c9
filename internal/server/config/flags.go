package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/outofsight/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-y bool     S3 path-style addressing
//	-m int      max upload size, bytes
//	-k int      chunk size, bytes
//	-x string   scratch root directory
//	-w int      background workers
//	-f bool     allow downloading failed files
//	-z bool     allow zero-byte objects
//	-l string   metrics listen address
//	-t int      shutdown timeout, seconds
//
// Notes:
//   - os.Args is first filtered to the flags recognized here using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Boolean flags must be written as -f or -f=false; a separate value
//     argument is not supported.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-d", "-s", "-u", "-p", "-b", "-g", "-e", "-y",
		"-m", "-k", "-x", "-w", "-f", "-z", "-l", "-t",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.BoolVar(&config.S3UsePathStyle, "y", config.S3UsePathStyle, "S3 path-style addressing")

	fs.Int64Var(&config.MaxUploadSize, "m", config.MaxUploadSize, "max upload size (in bytes)")
	fs.IntVar(&config.ChunkSize, "k", config.ChunkSize, "transfer chunk size (in bytes)")
	fs.StringVar(&config.ScratchRoot, "x", config.ScratchRoot, "scratch root directory")
	fs.IntVar(&config.Workers, "w", config.Workers, "background workers")
	fs.BoolVar(&config.AllowFailedDownloads, "f", config.AllowFailedDownloads, "allow downloading failed files")
	fs.BoolVar(&config.AllowEmptyObjects, "z", config.AllowEmptyObjects, "allow zero-byte objects")
	fs.StringVar(&config.MetricsAddr, "l", config.MetricsAddr, "metrics listen address")

	shutdownTimeout := fs.Int("t", int(config.ShutdownTimeout.Seconds()), "shutdown timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.ShutdownTimeout = time.Duration(*shutdownTimeout) * time.Second
}
