package tokenstore

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/metatavu/pakkasmarja-realtime/internal/models"
	"github.com/metatavu/pakkasmarja-realtime/pkg/encryption"
	"github.com/metatavu/pakkasmarja-realtime/pkg/file"
)

// Store persists the current credential between runs.
type Store interface {
	Get() (*models.Credential, error)
	Set(credential *models.Credential) error
	Clear() error
}

// FileStore keeps the credential as an encrypted JSON file.
type FileStore struct {
	tokenFilePath     string
	fileOps           file.FileOperations
	encryptionManager encryption.EncryptionManagerInterface
}

// NewFileStore initializes a new FileStore instance.
func NewFileStore(tokenFilePath string, fileOps file.FileOperations,
	encryptionManager encryption.EncryptionManagerInterface) *FileStore {
	return &FileStore{
		tokenFilePath:     tokenFilePath,
		fileOps:           fileOps,
		encryptionManager: encryptionManager,
	}
}

// Get reads the stored credential. A missing or empty file is not an error;
// it means no credential has been stored yet.
func (s *FileStore) Get() (*models.Credential, error) {
	data, err := s.fileOps.ReadFileRaw(s.tokenFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	if len(data) == 0 {
		return nil, nil
	}

	decrypted, err := s.encryptionManager.Decrypt(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt stored credential: %w", err)
	}

	var credential models.Credential
	if err := json.Unmarshal(decrypted, &credential); err != nil {
		return nil, fmt.Errorf("failed to parse stored credential: %w", err)
	}

	return &credential, nil
}

// Set replaces the stored credential.
func (s *FileStore) Set(credential *models.Credential) error {
	data, err := json.Marshal(credential)
	if err != nil {
		return fmt.Errorf("failed to serialize credential: %w", err)
	}

	encrypted, err := s.encryptionManager.Encrypt(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt credential: %w", err)
	}

	return s.fileOps.WriteFileRaw(s.tokenFilePath, encrypted)
}

// Clear removes the stored credential. Subsequent Get calls return absent.
func (s *FileStore) Clear() error {
	return s.fileOps.WriteFileRaw(s.tokenFilePath, nil)
}
