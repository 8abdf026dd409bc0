package k8s

import (
	"context"
	"fmt"
	"log/slog"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/xraph/steward"
	"github.com/xraph/steward/docstore"
)

// Compile-time check that Store implements docstore.Store.
var _ docstore.Store = (*Store)(nil)

// Store implements docstore.Store on top of ConfigMaps. Each document is
// one ConfigMap: the document name is the ConfigMap name, the document
// namespace is the ConfigMap namespace, and the data mapping is the
// ConfigMap's data field. The ConfigMap resourceVersion is carried as the
// document version but is never sent back on Replace, so every Replace is
// a whole-object overwrite regardless of concurrent writers.
type Store struct {
	client kubernetes.Interface
	logger *slog.Logger
}

// New creates a ConfigMap-backed document store.
func New(client kubernetes.Interface, opts ...Option) *Store {
	s := &Store{
		client: client,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Read fetches the ConfigMap backing the document.
func (s *Store) Read(ctx context.Context, name, namespace string) (*docstore.Document, error) {
	cm, err := s.client.CoreV1().ConfigMaps(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, fmt.Errorf("k8s: read configmap %s/%s: %w", namespace, name, steward.ErrDocumentNotFound)
		}
		return nil, fmt.Errorf("k8s: read configmap %s/%s: %w", namespace, name, err)
	}
	return documentFromConfigMap(cm), nil
}

// Create stores the document as a new ConfigMap.
func (s *Store) Create(ctx context.Context, doc *docstore.Document) (*docstore.Document, error) {
	cm, err := s.client.CoreV1().ConfigMaps(doc.Namespace).Create(ctx, configMapFromDocument(doc), metav1.CreateOptions{})
	if err != nil {
		if errors.IsAlreadyExists(err) {
			return nil, fmt.Errorf("k8s: create configmap %s/%s: %w", doc.Namespace, doc.Name, steward.ErrDocumentExists)
		}
		return nil, fmt.Errorf("k8s: create configmap %s/%s: %w", doc.Namespace, doc.Name, err)
	}
	s.logger.Info("created document configmap",
		slog.String("name", doc.Name),
		slog.String("namespace", doc.Namespace))
	return documentFromConfigMap(cm), nil
}

// Replace overwrites the ConfigMap with the document's current content.
// The stored resourceVersion is left empty on the update object, so the
// API server accepts the write without an optimistic-concurrency check.
func (s *Store) Replace(ctx context.Context, doc *docstore.Document) (*docstore.Document, error) {
	cm, err := s.client.CoreV1().ConfigMaps(doc.Namespace).Update(ctx, configMapFromDocument(doc), metav1.UpdateOptions{})
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, fmt.Errorf("k8s: replace configmap %s/%s: %w", doc.Namespace, doc.Name, steward.ErrDocumentNotFound)
		}
		return nil, fmt.Errorf("k8s: replace configmap %s/%s: %w", doc.Namespace, doc.Name, err)
	}
	return documentFromConfigMap(cm), nil
}

// Migrate is a no-op: ConfigMaps need no schema.
func (s *Store) Migrate(ctx context.Context) error { return nil }

// Ping checks API server connectivity.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.Discovery().ServerVersion()
	if err != nil {
		return fmt.Errorf("k8s: ping: %w", err)
	}
	return nil
}

// Close is a no-op: the clientset owns no long-lived connection state
// that needs explicit shutdown here.
func (s *Store) Close() error { return nil }

// documentFromConfigMap converts a ConfigMap to a document, copying the
// data map so callers never share memory with the client's object cache.
func documentFromConfigMap(cm *corev1.ConfigMap) *docstore.Document {
	data := make(map[string]string, len(cm.Data))
	for k, v := range cm.Data {
		data[k] = v
	}
	return &docstore.Document{
		Name:      cm.Name,
		Namespace: cm.Namespace,
		Data:      data,
		Version:   cm.ResourceVersion,
	}
}

// configMapFromDocument converts a document to a ConfigMap for writing.
func configMapFromDocument(doc *docstore.Document) *corev1.ConfigMap {
	data := make(map[string]string, len(doc.Data))
	for k, v := range doc.Data {
		data[k] = v
	}
	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      doc.Name,
			Namespace: doc.Namespace,
		},
		Data: data,
	}
}
