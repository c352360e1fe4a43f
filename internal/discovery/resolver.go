// Package discovery locates the metrics backend that widgets query.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aaronlmathis/sparkwatch/internal/metrics"
	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// ErrServiceNotFound is returned when the requested backend does not exist.
var ErrServiceNotFound = errors.New("service not found")

// Resolver resolves a service name to the base URL of its HTTP API.
// Any returned error means the service is unavailable.
type Resolver interface {
	Resolve(ctx context.Context, service string) (string, error)
}

// KubeResolver looks services up through the Kubernetes API
type KubeResolver struct {
	logger    *zap.Logger
	client    kubernetes.Interface
	namespace string
	portName  string
	scheme    string
}

// NewKubeResolver creates a resolver for services in namespace. portName selects
// the service port to use; when no port carries that name the first port wins.
func NewKubeResolver(logger *zap.Logger, client kubernetes.Interface, namespace, portName, scheme string) *KubeResolver {
	if scheme == "" {
		scheme = "http"
	}
	return &KubeResolver{
		logger:    logger,
		client:    client,
		namespace: namespace,
		portName:  portName,
		scheme:    scheme,
	}
}

// Resolve returns http://<service>.<namespace>.svc:<port>
func (r *KubeResolver) Resolve(ctx context.Context, service string) (string, error) {
	svc, err := r.client.CoreV1().Services(r.namespace).Get(ctx, service, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			metrics.RecordDiscoveryLookup("kubernetes", "not_found")
			return "", fmt.Errorf("%w: %s/%s", ErrServiceNotFound, r.namespace, service)
		}
		metrics.RecordDiscoveryLookup("kubernetes", "error")
		return "", fmt.Errorf("failed to look up service %s/%s: %w", r.namespace, service, err)
	}

	port, ok := pickPort(svc.Spec.Ports, r.portName)
	if !ok {
		metrics.RecordDiscoveryLookup("kubernetes", "no_ports")
		return "", fmt.Errorf("%w: %s/%s exposes no ports", ErrServiceNotFound, r.namespace, service)
	}

	metrics.RecordDiscoveryLookup("kubernetes", "found")
	baseURL := fmt.Sprintf("%s://%s.%s.svc:%d", r.scheme, svc.Name, svc.Namespace, port)
	r.logger.Debug("Resolved service",
		zap.String("service", service),
		zap.String("namespace", r.namespace),
		zap.String("baseURL", baseURL))
	return baseURL, nil
}

func pickPort(ports []corev1.ServicePort, name string) (int32, bool) {
	if len(ports) == 0 {
		return 0, false
	}
	for _, p := range ports {
		if p.Name == name {
			return p.Port, true
		}
	}
	return ports[0].Port, true
}

// StaticResolver always resolves to a configured URL. An empty URL means the
// backend is not deployed.
type StaticResolver struct {
	URL string
}

// Resolve implements Resolver
func (r StaticResolver) Resolve(_ context.Context, service string) (string, error) {
	if r.URL == "" {
		metrics.RecordDiscoveryLookup("static", "not_found")
		return "", fmt.Errorf("%w: no URL configured for %s", ErrServiceNotFound, service)
	}
	metrics.RecordDiscoveryLookup("static", "found")
	return strings.TrimSuffix(r.URL, "/"), nil
}
