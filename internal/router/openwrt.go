package router

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/airfi/airfi-portal/internal/macaddr"
)

// OpenWrtConfig holds the configuration for an OpenWrt router with OpenNDS.
type OpenWrtConfig struct {
	Address    string // Router SSH address (e.g., "192.168.1.1")
	Port       int    // SSH port (default: 22)
	Username   string // SSH username (default: "root")
	Password   string
	PrivateKey string // PEM private key, alternative to Password
	Timeout    time.Duration
}

// OpenWrtClient authorizes clients by running ndsctl over SSH.
type OpenWrtClient struct {
	config    OpenWrtConfig
	sshConfig *ssh.ClientConfig
	logger    *zap.Logger
}

// NewOpenWrtClient creates a new OpenWrt/OpenNDS client.
func NewOpenWrtClient(config OpenWrtConfig, logger *zap.Logger) (*OpenWrtClient, error) {
	if config.Address == "" {
		return nil, ErrControllerUnconfigured
	}
	if config.Port == 0 {
		config.Port = 22
	}
	if config.Username == "" {
		config.Username = "root"
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var authMethods []ssh.AuthMethod
	if config.Password != "" {
		authMethods = append(authMethods, ssh.Password(config.Password))
	}
	if config.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(config.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}
	if len(authMethods) == 0 {
		return nil, fmt.Errorf("no authentication method provided (password or private key required)")
	}

	return &OpenWrtClient{
		config: config,
		sshConfig: &ssh.ClientConfig{
			User:            config.Username,
			Auth:            authMethods,
			HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // routers on the LAN rotate keys on reflash
			Timeout:         config.Timeout,
		},
		logger: logger,
	}, nil
}

// AuthorizeMAC runs "ndsctl auth <mac> <minutes>". Only output reporting
// the client as authenticated counts as success; OpenNDS answers that way
// for clients it already knows too.
func (c *OpenWrtClient) AuthorizeMAC(ctx context.Context, macAddress string, minutes int) error {
	mac, err := macaddr.Canonical(macAddress)
	if err != nil {
		return err
	}

	c.logger.Info("authorizing MAC address via OpenNDS",
		zap.String("mac", mac),
		zap.Int("minutes", minutes),
	)

	output, err := c.runSSHCommand(ctx, "ndsctl auth "+mac+" "+strconv.Itoa(minutes))
	output = strings.TrimSpace(output)
	lower := strings.ToLower(output)

	switch {
	case strings.Contains(lower, "not found"):
		return &ControllerCommandError{Body: "client not connected to WiFi network (MAC not found in OpenNDS)", Err: err}
	case err != nil:
		return &ControllerCommandError{Body: output, Err: err}
	case strings.Contains(lower, "authenticated") && !strings.Contains(lower, "not authenticated"):
		c.logger.Info("MAC authorized successfully", zap.String("mac", mac))
		return nil
	default:
		c.logger.Warn("unexpected ndsctl output", zap.String("output", output))
		return &ControllerCommandError{Body: output}
	}
}

// TestConnection checks that OpenNDS answers "ndsctl status".
func (c *OpenWrtClient) TestConnection(ctx context.Context) error {
	output, err := c.runSSHCommand(ctx, "ndsctl status")
	if err != nil {
		return &ControllerAuthError{Body: strings.TrimSpace(output), Err: err}
	}
	if !strings.Contains(output, "openNDS") && !strings.Contains(output, "Version") {
		return &ControllerAuthError{Body: "OpenNDS does not appear to be running"}
	}
	return nil
}

// runSSHCommand executes a command on the router via SSH. A non-zero exit
// returns whatever the command printed together with the *ssh.ExitError.
func (c *OpenWrtClient) runSSHCommand(ctx context.Context, cmd string) (string, error) {
	addr := net.JoinHostPort(c.config.Address, strconv.Itoa(c.config.Port))

	dialer := net.Dialer{Timeout: c.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("SSH connection failed: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(c.config.Timeout))
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, c.sshConfig)
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("SSH handshake failed: %w", err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	output, err := session.CombinedOutput(cmd)
	if err != nil {
		return string(output), fmt.Errorf("command %q failed: %w", cmd, err)
	}
	return string(output), nil
}
