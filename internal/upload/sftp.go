package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	xssh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/vidbatch/vidbatch/internal/core"
)

// SFTPUploader uploads results to a remote archive host over SFTP and
// verifies each transfer with a SHA-256 checksum computed remotely.
type SFTPUploader struct {
	cfg core.ArchiveConfig
	log zerolog.Logger

	client *xssh.Client
}

func newSFTPUploader(cfg core.ArchiveConfig, log zerolog.Logger) *SFTPUploader {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	return &SFTPUploader{cfg: cfg, log: log}
}

func (u *SFTPUploader) connect(ctx context.Context) (*xssh.Client, error) {
	if u.client != nil {
		return u.client, nil
	}
	key, err := os.ReadFile(u.cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	signer, err := xssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	hostKeys := xssh.InsecureIgnoreHostKey()
	if u.cfg.KnownHosts != "" {
		hostKeys, err = knownhosts.New(u.cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
	}
	config := &xssh.ClientConfig{
		User:            u.cfg.User,
		Auth:            []xssh.AuthMethod{xssh.PublicKeys(signer)},
		HostKeyCallback: hostKeys,
		Timeout:         30 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", u.cfg.Host, u.cfg.Port)
	type res struct {
		cli *xssh.Client
		err error
	}
	ch := make(chan res, 1)
	go func() {
		cli, err := xssh.Dial("tcp", addr, config)
		ch <- res{cli: cli, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("ssh dial: %w", r.err)
		}
		u.client = r.cli
		return u.client, nil
	}
}

func (u *SFTPUploader) Upload(ctx context.Context, localPath, name string) (string, error) {
	checksum, err := fileChecksum(localPath)
	if err != nil {
		return "", fmt.Errorf("calculate checksum: %w", err)
	}

	client, err := u.connect(ctx)
	if err != nil {
		return "", err
	}
	sf, err := sftp.NewClient(client)
	if err != nil {
		return "", fmt.Errorf("sftp client: %w", err)
	}
	defer sf.Close()

	remotePath := path.Join(u.cfg.RemoteDir, ArchiveKey(u.cfg.Prefix, name, time.Now()))
	if err := sf.MkdirAll(path.Dir(remotePath)); err != nil {
		return "", fmt.Errorf("mkdir remote: %w", err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open local: %w", err)
	}
	defer src.Close()
	dst, err := sf.Create(remotePath)
	if err != nil {
		return "", fmt.Errorf("create remote: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("copy: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close remote: %w", err)
	}

	if err := u.verifyRemoteChecksum(remotePath, checksum); err != nil {
		_ = sf.Remove(remotePath)
		return "", fmt.Errorf("checksum verification: %w", err)
	}
	u.log.Info().Str("remote", remotePath).Msg("archived via sftp")
	return fmt.Sprintf("sftp://%s%s", u.cfg.Host, remotePath), nil
}

func (u *SFTPUploader) verifyRemoteChecksum(remotePath, expected string) error {
	session, err := u.client.NewSession()
	if err != nil {
		return fmt.Errorf("new session: %w", err)
	}
	defer session.Close()

	out, err := session.Output(fmt.Sprintf("sha256sum %s | cut -d' ' -f1", remotePath))
	if err != nil {
		return fmt.Errorf("remote checksum: %w", err)
	}
	got := strings.TrimSpace(string(out))
	if got != expected {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expected, got)
	}
	return nil
}

func (u *SFTPUploader) Close() error {
	if u.client == nil {
		return nil
	}
	err := u.client.Close()
	u.client = nil
	return err
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
