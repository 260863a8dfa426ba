// Description: This is the main file of the ftpd server.
// It wires the local filesystem and the user store into the FTP, FTPS
// and SFTP front-ends from environment configuration and runs them until
// a shutdown signal arrives.

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/telebroad/ftpd/filesystem"
	"github.com/telebroad/ftpd/ftp"
	"github.com/telebroad/ftpd/sftp"
	"github.com/telebroad/ftpd/users"
)

func main() {
	logger := setupLogger()
	slog.SetDefault(logger)

	env, err := GetEnv(logger)
	if err != nil {
		logger.Error("Error getting environment", "error", err)
		os.Exit(1)
	}

	u := GetUsers(logger, env)
	fs := filesystem.NewLocalFS(env.FtpServerRoot)

	// ftp server, explicit TLS when a certificate is configured
	ftpServer, err := ftp.NewServer(env.FtpAddr, fs, u)
	if err != nil {
		logger.Error("Error creating ftp server", "error", err)
		os.Exit(1)
	}
	ftpServer.SetLogger(logger.With("module", "ftp-server"))
	ftpServer.PasvMinPort = env.PasvMinPort
	ftpServer.PasvMaxPort = env.PasvMaxPort
	ftpServer.IdleTimeout = env.IdleTimeout
	if env.FtpServerIPv4 != "" {
		if err := ftpServer.SetPublicServerIPv4(env.FtpServerIPv4); err != nil {
			logger.Error("Error setting public server ip", "error", err)
			os.Exit(1)
		}
	}

	if env.CrtFile != "" && env.KeyFile != "" {
		err = ftpServer.TryListenAndServeTLSe(env.CrtFile, env.KeyFile, time.Second)
	} else {
		err = ftpServer.TryListenAndServe(time.Second)
	}
	if err != nil {
		logger.Error("Error starting ftp server", "error", err)
		os.Exit(1)
	}
	logger.Info("FTP server started", "addr", env.FtpAddr)

	// ftps server, implicit TLS
	var ftpsServer *ftp.Server
	if env.FtpsAddr != "" && env.CrtFile != "" && env.KeyFile != "" {
		ftpsServer, err = ftp.NewServer(env.FtpsAddr, fs, u)
		if err != nil {
			logger.Error("Error creating ftps server", "error", err)
			os.Exit(1)
		}
		ftpsServer.SetLogger(logger.With("module", "ftps-server"))
		ftpsServer.PasvMinPort = env.PasvMinPort
		ftpsServer.PasvMaxPort = env.PasvMaxPort
		ftpsServer.IdleTimeout = env.IdleTimeout
		if env.FtpServerIPv4 != "" {
			if err := ftpsServer.SetPublicServerIPv4(env.FtpServerIPv4); err != nil {
				logger.Error("Error setting public server ip", "error", err)
				os.Exit(1)
			}
		}
		if err := ftpsServer.TryListenAndServeTLS(env.CrtFile, env.KeyFile, time.Second); err != nil {
			logger.Error("Error starting ftps server", "error", err)
			os.Exit(1)
		}
		logger.Info("FTPS server started", "addr", env.FtpsAddr)
	}

	// sftp server
	var sftpServer *sftp.Server
	if env.SftpAddr != "" {
		sftpServer = sftp.NewServer(env.SftpAddr, fs, u)
		sftpServer.SetLogger(logger.With("module", "sftp-server"))
		if env.KeyFile != "" {
			if err := sftpServer.SetPrivateKeyFile(env.KeyFile); err != nil {
				logger.Error("Error setting private key", "error", err)
				os.Exit(1)
			}
		}
		if err := sftpServer.TryListenAndServe(time.Second); err != nil {
			logger.Error("Error starting sftp server", "error", err)
			os.Exit(1)
		}
		logger.Info("SFTP server started", "addr", env.SftpAddr)
	}

	// graceful shutdown
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGTERM)
	<-stopChan

	ftpServer.Close(fmt.Errorf("ftp server closed by signal"))
	if ftpsServer != nil {
		ftpsServer.Close(fmt.Errorf("ftps server closed by signal"))
	}
	if sftpServer != nil {
		sftpServer.Close()
	}
}

func setupLogger() *slog.Logger {
	logLevel := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "DEBUG":
		logLevel = slog.LevelDebug
	case "INFO":
		logLevel = slog.LevelInfo
	case "WARN":
		logLevel = slog.LevelWarn
	case "ERROR":
		logLevel = slog.LevelError
	}

	handler := tint.NewHandler(os.Stdout, &tint.Options{
		AddSource: true,
		Level:     logLevel,
	})

	logger := slog.New(handler).With("app", "ftpd")
	logger.Info("Logger initialized", "level", logLevel)
	return logger
}

// GetUsers builds the authorizer from the environment: an optional
// default user plus the anonymous bypass.
func GetUsers(logger *slog.Logger, env *Environment) *users.LocalUsers {
	u := users.NewLocalUsers()

	if env.DefaultUser != "" {
		user := u.Add(env.DefaultUser, env.DefaultPass)
		user.AddIP("127.0.0.0/8")
		user.AddIP("10.0.0.0/8")
		user.AddIP("172.16.0.0/12")
		user.AddIP("192.168.0.0/16")
		user.AddIP("fd00::/8")
		user.AddIP("::1")
		logger.Debug("default user registered", "username", env.DefaultUser)
	}
	if env.AnonymousEnabled {
		u.AllowAnonymous(env.AnonymousRoot, users.PermReadOnly)
		logger.Debug("anonymous access enabled", "root", env.AnonymousRoot)
	}
	return u
}

// Environment is the environment of the server.
type Environment struct {
	FtpAddr          string
	FtpsAddr         string
	SftpAddr         string
	CrtFile          string
	KeyFile          string
	FtpServerIPv4    string
	FtpServerRoot    string
	PasvMinPort      int
	PasvMaxPort      int
	IdleTimeout      time.Duration
	AnonymousEnabled bool
	AnonymousRoot    string
	DefaultUser      string
	DefaultPass      string
}

// GetEnv returns a new Environment from the environment variables.
func GetEnv(logger *slog.Logger) (*Environment, error) {
	env := &Environment{
		FtpAddr:       os.Getenv("FTP_SERVER_ADDR"),
		FtpsAddr:      os.Getenv("FTPS_SERVER_ADDR"),
		SftpAddr:      os.Getenv("SFTP_SERVER_ADDR"),
		FtpServerRoot: os.Getenv("FTP_SERVER_ROOT"),
		CrtFile:       os.Getenv("CRT_FILE"),
		KeyFile:       os.Getenv("KEY_FILE"),
		DefaultUser:   os.Getenv("FTP_DEFAULT_USER"),
		DefaultPass:   os.Getenv("FTP_DEFAULT_PASS"),
	}
	if env.FtpAddr == "" {
		env.FtpAddr = ":21"
	}
	if env.FtpServerRoot == "" {
		env.FtpServerRoot = "/static"
	}
	env.AnonymousEnabled = os.Getenv("FTP_ANONYMOUS") == "true"
	env.AnonymousRoot = os.Getenv("FTP_ANON_ROOT")
	if env.AnonymousRoot == "" {
		env.AnonymousRoot = "/"
	}

	// the public ip of the server, for PASV mode behind NAT
	env.FtpServerIPv4 = os.Getenv("FTP_SERVER_IPV4")
	if env.FtpServerIPv4 == "" {
		logger.Debug("FTP_SERVER_IPV4 was empty, getting public ip from ipify.org")
		ip, err := ftp.GetServerPublicIP()
		if err != nil {
			logger.Warn("error getting public ip, advertising the local address", "error", err)
		} else {
			env.FtpServerIPv4 = ip
		}
	}

	env.PasvMinPort, _ = strconv.Atoi(os.Getenv("PASV_MIN_PORT"))
	env.PasvMaxPort, _ = strconv.Atoi(os.Getenv("PASV_MAX_PORT"))
	if t, err := strconv.Atoi(os.Getenv("FTP_IDLE_TIMEOUT_SECONDS")); err == nil && t > 0 {
		env.IdleTimeout = time.Duration(t) * time.Second
	}

	logger.Debug("FTP_SERVER_ADDR is", "ADDR", env.FtpAddr)
	logger.Debug("FTPS_SERVER_ADDR is", "ADDR", env.FtpsAddr)
	logger.Debug("SFTP_SERVER_ADDR is", "ADDR", env.SftpAddr)
	logger.Debug("FTP_SERVER_IPV4 is", "IP", env.FtpServerIPv4)
	logger.Debug("FTP_SERVER_ROOT is", "ROOT", env.FtpServerRoot)
	logger.Debug("PASV_MIN_PORT is", "PORT", env.PasvMinPort)
	logger.Debug("PASV_MAX_PORT is", "PORT", env.PasvMaxPort)
	logger.Debug("CRT_FILE is", "FILE", env.CrtFile)
	logger.Debug("KEY_FILE is", "FILE", env.KeyFile)

	return env, nil
}
