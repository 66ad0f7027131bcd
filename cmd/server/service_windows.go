//go:build windows

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/eventlog"
	"golang.org/x/sys/windows/svc/mgr"

	"github.com/health-recorder-ai/health-recorder/internal/cmd"
	"github.com/health-recorder-ai/health-recorder/internal/config"
)

const serviceName = "HealthRecorder"
const serviceDisplayName = "Health Recorder"
const serviceDescription = "Health record journal with local model chat"

// recorderService implements svc.Handler.
type recorderService struct {
	configPath string
}

func reportEvent(msg string) {
	elog, err := eventlog.Open(serviceName)
	if err != nil {
		return
	}
	_ = elog.Error(1, msg)
	_ = elog.Close()
}

func (s *recorderService) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (ssec bool, errno uint32) {
	const cmdsAccepted = svc.AcceptStop | svc.AcceptShutdown
	changes <- svc.Status{State: svc.StartPending}

	cfg, err := config.LoadConfig(s.configPath)
	if err != nil {
		reportEvent(fmt.Sprintf("Failed to load config: %v", err))
		return false, 1
	}
	if err = cmd.ApplyLogging(cfg); err != nil {
		reportEvent(fmt.Sprintf("Failed to configure logging: %v", err))
		return false, 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- cmd.StartService(ctx, cfg, s.configPath) }()

	changes <- svc.Status{State: svc.Running, Accepts: cmdsAccepted}

	for {
		select {
		case err = <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				reportEvent(fmt.Sprintf("Service error: %v", err))
				return false, 1
			}
			return false, 0
		case c := <-r:
			switch c.Cmd {
			case svc.Stop, svc.Shutdown:
				changes <- svc.Status{State: svc.StopPending}
				cancel()
				<-done
				return false, 0
			case svc.Interrogate:
				changes <- c.CurrentStatus
			}
		}
	}
}

// isWindowsService reports whether the process was started by the service manager.
func isWindowsService() bool {
	ok, err := svc.IsWindowsService()
	return err == nil && ok
}

// runService runs under the Windows service manager until stopped.
func runService(configPath string) error {
	elog, err := eventlog.Open(serviceName)
	if err != nil {
		return err
	}
	defer elog.Close()

	_ = elog.Info(1, fmt.Sprintf("Starting %s service", serviceName))
	if err = svc.Run(serviceName, &recorderService{configPath: configPath}); err != nil {
		_ = elog.Error(1, fmt.Sprintf("Service failed: %v", err))
		return err
	}
	_ = elog.Info(1, fmt.Sprintf("%s service stopped", serviceName))
	return nil
}

func installService(configPath string) error {
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	exePath = filepath.Clean(exePath)
	if configPath != "" {
		if configPath, err = filepath.Abs(configPath); err != nil {
			return err
		}
	}

	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to service manager: %w", err)
	}
	defer m.Disconnect()

	if s, errOpen := m.OpenService(serviceName); errOpen == nil {
		s.Close()
		return fmt.Errorf("service %s already exists", serviceName)
	}

	var args []string
	if configPath != "" {
		args = append(args, "-config", configPath)
	}
	s, err := m.CreateService(serviceName, exePath, mgr.Config{
		DisplayName:  serviceDisplayName,
		Description:  serviceDescription,
		StartType:    mgr.StartAutomatic,
		ErrorControl: mgr.ErrorNormal,
	}, args...)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer s.Close()

	// Restart on failure; reset the failure count after a day.
	_ = s.SetRecoveryActions([]mgr.RecoveryAction{
		{Type: mgr.ServiceRestart, Delay: 5 * time.Second},
		{Type: mgr.ServiceRestart, Delay: 30 * time.Second},
	}, 86400)
	_ = eventlog.InstallAsEventCreate(serviceName, eventlog.Error|eventlog.Warning|eventlog.Info)

	fmt.Printf("Service %s installed\n", serviceName)
	return nil
}

func uninstallService() error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to service manager: %w", err)
	}
	defer m.Disconnect()

	s, err := m.OpenService(serviceName)
	if err != nil {
		return fmt.Errorf("service %s not found: %w", serviceName, err)
	}
	defer s.Close()

	if status, errQuery := s.Query(); errQuery == nil && status.State != svc.Stopped {
		_, _ = s.Control(svc.Stop)
		for i := 0; i < 10; i++ {
			time.Sleep(500 * time.Millisecond)
			status, errQuery = s.Query()
			if errQuery != nil || status.State == svc.Stopped {
				break
			}
		}
	}
	if err = s.Delete(); err != nil {
		return fmt.Errorf("failed to delete service: %w", err)
	}
	_ = eventlog.Remove(serviceName)

	fmt.Printf("Service %s uninstalled\n", serviceName)
	return nil
}

func controlService(start bool) error {
	m, err := mgr.Connect()
	if err != nil {
		return err
	}
	defer m.Disconnect()

	s, err := m.OpenService(serviceName)
	if err != nil {
		return fmt.Errorf("service %s not found: %w", serviceName, err)
	}
	defer s.Close()

	if start {
		return s.Start()
	}
	_, err = s.Control(svc.Stop)
	return err
}

// handleServiceCommand runs "service install|uninstall|start|stop". It
// reports false when args are not a service command.
func handleServiceCommand(args []string, configPath string) bool {
	if len(args) < 2 || args[0] != "service" {
		return false
	}
	var err error
	switch strings.ToLower(args[1]) {
	case "install":
		err = installService(configPath)
	case "uninstall", "remove":
		err = uninstallService()
	case "start":
		err = controlService(true)
	case "stop":
		err = controlService(false)
	default:
		err = fmt.Errorf("unknown service command %q", args[1])
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return true
}
