//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	postgresImage   = "postgres:16-alpine"
	postgresUser    = "risk"
	postgresPass    = "risk-test"
	postgresDB      = "risktest"
	postgresStartup = 45 * time.Second
)

// pgContainer is a throwaway postgres started through the docker CLI.
type pgContainer struct {
	name string
	port int
}

func (c *pgContainer) dsn() string {
	return fmt.Sprintf("postgres://%s:%s@127.0.0.1:%d/%s?sslmode=disable",
		postgresUser, postgresPass, c.port, postgresDB)
}

func (c *pgContainer) stop() {
	_ = exec.Command("docker", "rm", "--force", "--volumes", c.name).Run()
}

// startPostgresContainer runs postgres on a free local port and blocks until
// it accepts connections. The returned func removes the container.
func startPostgresContainer(ctx context.Context) (string, func(), error) {
	port, err := freeLocalPort()
	if err != nil {
		return "", nil, fmt.Errorf("find free port: %w", err)
	}
	c := &pgContainer{name: fmt.Sprintf("risk-integration-test-%d", port), port: port}

	args := []string{"run", "--detach", "--rm",
		"--name", c.name,
		"--publish", fmt.Sprintf("127.0.0.1:%d:5432", port),
		"--env", "POSTGRES_USER=" + postgresUser,
		"--env", "POSTGRES_PASSWORD=" + postgresPass,
		"--env", "POSTGRES_DB=" + postgresDB,
		postgresImage,
	}
	if out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput(); err != nil {
		return "", nil, fmt.Errorf("docker %v: %w: %s", args[0], err, out)
	}

	readyCtx, cancel := context.WithTimeout(ctx, postgresStartup)
	defer cancel()
	if err := waitReady(readyCtx, c.dsn()); err != nil {
		c.stop()
		return "", nil, err
	}
	return c.dsn(), c.stop, nil
}

func freeLocalPort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// waitReady retries a connect and SELECT until it succeeds or ctx ends.
// The image only listens on TCP once init has finished.
func waitReady(ctx context.Context, dsn string) error {
	tick := time.NewTicker(400 * time.Millisecond)
	defer tick.Stop()

	var lastErr error
	for {
		if lastErr = probe(ctx, dsn); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Join(fmt.Errorf("postgres not ready: %w", ctx.Err()), lastErr)
		case <-tick.C:
		}
	}
}

func probe(ctx context.Context, dsn string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	var one int
	return conn.QueryRow(ctx, "SELECT 1").Scan(&one)
}
