package deaddrop

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/deaddrop/client-go/internal/crypto"
	"github.com/deaddrop/client-go/internal/filecrypt"
)

// FileTransferMetadata describes an encrypted file container. It travels
// inside an encrypted message as part of a FileTransferGrant, never alongside
// the container, so whoever hosts the container learns nothing but its size.
// Filename is the original name; MaskedFilename is the random name the
// container should be stored under.
type FileTransferMetadata struct {
	TransferID     string `json:"transferId"`
	Filename       string `json:"filename"`
	MaskedFilename string `json:"maskedFilename"`
	Size           int64  `json:"size"`
	MimeType       string `json:"mimeType"`
	ChunkSize      int    `json:"chunkSize"`
	BaseIV         string `json:"baseIv"`
	Checksum       string `json:"checksum"`
}

// EncryptedFile is the output of EncryptFile: the container bytes to hand to
// whatever transport or host will carry them, and the metadata and key that
// must travel separately over an encrypted message.
type EncryptedFile struct {
	Container []byte
	Metadata  FileTransferMetadata
	Key       []byte
}

// DecryptedFile is a reconstructed file with its original identity restored.
type DecryptedFile struct {
	Content  []byte
	Filename string
	MimeType string
}

// EncodeFileKey returns a file key in the encoding FileTransferGrant carries.
func EncodeFileKey(key []byte) string {
	return crypto.ToBase64URL(key)
}

// DecodeFileKey reverses EncodeFileKey, rejecting anything that is not a
// full-length key.
func DecodeFileKey(s string) ([]byte, error) {
	key, err := crypto.FromBase64URL(s)
	if err != nil {
		return nil, newValidationError("file key is not valid base64url")
	}
	if len(key) != crypto.AESKeySize {
		return nil, newValidationError(fmt.Sprintf("file key must be %d bytes", crypto.AESKeySize))
	}
	return key, nil
}

// EncryptFile seals content into an encrypted container under a fresh random
// key. The container carries no filename, type or key material; everything
// needed to open it comes back in the metadata, which the caller sends over
// an encrypted channel. The original filename is replaced by a random masked
// name for storage.
func EncryptFile(content []byte, filename, mimeType string, opts ...FileOption) (*EncryptedFile, error) {
	if len(content) == 0 {
		return nil, newValidationError("file content must not be empty")
	}
	cfg := &fileConfig{chunkSize: filecrypt.DefaultChunkSize}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.chunkSize <= 0 {
		return nil, newValidationError("chunk size must be positive")
	}

	result, err := filecrypt.Encrypt(content, cfg.chunkSize)
	if err != nil {
		return nil, &CryptoError{Op: "encrypt file", Err: err}
	}

	return &EncryptedFile{
		Container: result.Container,
		Key:       result.Key,
		Metadata: FileTransferMetadata{
			TransferID:     result.TransferID,
			Filename:       filename,
			MaskedFilename: uuid.NewString() + ".bin",
			Size:           int64(len(content)),
			MimeType:       mimeType,
			ChunkSize:      result.ChunkSize,
			BaseIV:         crypto.ToBase64URL(result.BaseIV),
			Checksum:       crypto.ToBase64URL(result.Checksum),
		},
	}, nil
}

// DecryptFile validates a container against its metadata and reconstructs
// the original file. Any mismatch between the two, or any damage to the
// container, fails the whole decryption; there are no partial results.
func DecryptFile(container []byte, metadata FileTransferMetadata, key []byte) (*DecryptedFile, error) {
	baseIV, err := crypto.FromBase64URL(metadata.BaseIV)
	if err != nil {
		return nil, newValidationError("metadata base iv is not valid base64url")
	}
	checksum, err := crypto.FromBase64URL(metadata.Checksum)
	if err != nil {
		return nil, newValidationError("metadata checksum is not valid base64url")
	}

	content, err := filecrypt.Decrypt(container, filecrypt.DecryptParams{
		Key:        key,
		TransferID: metadata.TransferID,
		BaseIV:     baseIV,
		Checksum:   checksum,
		ChunkSize:  metadata.ChunkSize,
	})
	if err != nil {
		return nil, wrapFileError(err)
	}

	return &DecryptedFile{
		Content:  content,
		Filename: metadata.Filename,
		MimeType: metadata.MimeType,
	}, nil
}
