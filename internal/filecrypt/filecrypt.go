// Package filecrypt implements the encrypted file container.
//
// A container is the magic header, the transfer id in uuid text form, a
// newline, then the ciphertext of the file split into fixed-size chunks.
// Each chunk is sealed independently with AES-256-GCM; chunk i's nonce is
// the base nonce with i added to its low 32 bits (big-endian), so nonce
// uniqueness holds without storing one nonce per chunk. A SHA-256 checksum
// over the ciphertext (header excluded) travels in the metadata and is
// verified before any chunk is decrypted.
//
// The key never enters the container. It rides inside an encrypted message
// alongside the rest of the transfer metadata.
package filecrypt

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/deaddrop/client-go/internal/crypto"
)

const (
	// MagicHeader opens every container.
	MagicHeader = "MASKED1\n"

	// TransferIDLength is the uuid text length embedded after the header.
	TransferIDLength = 36

	// DefaultChunkSize is the plaintext chunk size when none is given.
	DefaultChunkSize = 1 << 20

	headerLength = len(MagicHeader) + TransferIDLength + 1
)

// EncryptResult bundles a freshly built container with everything the
// recipient needs to open it. All fields are immutable once returned.
type EncryptResult struct {
	Container  []byte
	Key        []byte
	BaseIV     []byte
	TransferID string
	Checksum   []byte
	ChunkSize  int
}

// DecryptParams carries the metadata fields Decrypt validates the container
// against. ChunkSize zero means DefaultChunkSize.
type DecryptParams struct {
	Key        []byte
	TransferID string
	BaseIV     []byte
	Checksum   []byte
	ChunkSize  int
}

// Encrypt seals content into a container under a fresh key and base nonce.
func Encrypt(content []byte, chunkSize int) (*EncryptResult, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	key, err := crypto.RandomKey()
	if err != nil {
		return nil, fmt.Errorf("generate file key: %w", err)
	}
	baseIV, err := crypto.RandomNonce()
	if err != nil {
		return nil, fmt.Errorf("generate base nonce: %w", err)
	}
	aead, err := crypto.NewAEAD(key)
	if err != nil {
		return nil, err
	}

	transferID := uuid.New().String()

	var container bytes.Buffer
	container.Grow(headerLength + len(content) + (len(content)/chunkSize+1)*aead.Overhead())
	container.WriteString(MagicHeader)
	container.WriteString(transferID)
	container.WriteByte('\n')

	checksum := sha256.New()
	for index, offset := 0, 0; offset < len(content); index, offset = index+1, offset+chunkSize {
		end := offset + chunkSize
		if end > len(content) {
			end = len(content)
		}
		sealed := aead.Seal(nil, chunkNonce(baseIV, uint32(index)), content[offset:end], nil)
		container.Write(sealed)
		checksum.Write(sealed)
	}

	return &EncryptResult{
		Container:  container.Bytes(),
		Key:        key,
		BaseIV:     baseIV,
		TransferID: transferID,
		Checksum:   checksum.Sum(nil),
		ChunkSize:  chunkSize,
	}, nil
}

// Decrypt validates a container against params and reconstructs the exact
// original bytes. Validation order is fixed: header, transfer id, checksum,
// then chunk decryption; the checksum is compared before any chunk is
// opened, and the first bad chunk aborts the whole reconstruction.
func Decrypt(container []byte, params DecryptParams) ([]byte, error) {
	chunkSize := params.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if len(params.BaseIV) != crypto.AESNonceSize {
		return nil, fmt.Errorf("filecrypt: %w", crypto.ErrInvalidNonceSize)
	}

	if len(container) < headerLength || !bytes.HasPrefix(container, []byte(MagicHeader)) {
		return nil, ErrInvalidFormat
	}
	idStart := len(MagicHeader)
	embeddedID := string(container[idStart : idStart+TransferIDLength])
	if container[headerLength-1] != '\n' {
		return nil, ErrInvalidFormat
	}
	if embeddedID != params.TransferID {
		return nil, fmt.Errorf("%w: container %s, metadata %s", ErrMetadataMismatch, embeddedID, params.TransferID)
	}

	ciphertext := container[headerLength:]
	digest := sha256.Sum256(ciphertext)
	if !bytes.Equal(digest[:], params.Checksum) {
		return nil, ErrIntegrityFailure
	}

	aead, err := crypto.NewAEAD(params.Key)
	if err != nil {
		return nil, err
	}

	sealedChunkSize := chunkSize + aead.Overhead()
	content := make([]byte, 0, len(ciphertext))
	for index, offset := 0, 0; offset < len(ciphertext); index, offset = index+1, offset+sealedChunkSize {
		end := offset + sealedChunkSize
		if end > len(ciphertext) {
			end = len(ciphertext)
		}
		chunk, err := aead.Open(nil, chunkNonce(params.BaseIV, uint32(index)), ciphertext[offset:end], nil)
		if err != nil {
			return nil, &DecryptionError{Chunk: index, Err: err}
		}
		content = append(content, chunk...)
	}

	return content, nil
}

// chunkNonce derives chunk index's nonce: the base nonce with index added
// to its low 32 bits, wrapping within those bits.
func chunkNonce(base []byte, index uint32) []byte {
	nonce := make([]byte, len(base))
	copy(nonce, base)
	low := binary.BigEndian.Uint32(nonce[len(nonce)-4:])
	binary.BigEndian.PutUint32(nonce[len(nonce)-4:], low+index)
	return nonce
}
