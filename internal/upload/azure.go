package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

var _ Store = (*Azure)(nil)

// Azure uploads to a single blob container. Existing blobs are overwritten.
type Azure struct {
	container *container.Client
	prefix    string
	logger    *slog.Logger
}

// NewAzure builds a container client from a storage connection string.
func NewAzure(connectionString, containerName, prefix string, logger *slog.Logger) (*Azure, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("upload/azure: parse connection string: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Azure{
		container: client.ServiceClient().NewContainerClient(containerName),
		prefix:    prefix,
		logger:    logger,
	}, nil
}

func (a *Azure) Probe(ctx context.Context) error {
	if _, err := a.container.GetProperties(ctx, nil); err != nil {
		return fmt.Errorf("upload/azure: container properties: %w", err)
	}
	return nil
}

func (a *Azure) Upload(ctx context.Context, path string) (string, error) {
	contentType, err := detectMime(path)
	if err != nil {
		return "", err
	}
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer file.Close()

	name := BlobName(a.prefix, path)
	bb := a.container.NewBlockBlobClient(name)
	_, err = bb.UploadFile(ctx, file, &blockblob.UploadFileOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return "", fmt.Errorf("upload/azure: upload %s: %w", name, err)
	}
	a.logger.Info("artifact uploaded", "backend", "azure", "blob", name, "content_type", contentType)
	return bb.URL(), nil
}
