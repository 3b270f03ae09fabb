package domain

import "context"

type Compressor interface {
	Compress(ctx context.Context, sourcePath, destPath string) error
}

type Encryptor interface {
	Encrypt(ctx context.Context, sourcePath, destPath string) error
}

type Checksummer interface {
	Checksum(ctx context.Context, path string) (string, error)
}

// Signer produces a detached signature over a file.
type Signer interface {
	Sign(ctx context.Context, path string) ([]byte, error)
}
