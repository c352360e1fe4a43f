package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

func service(name, namespace string, ports ...corev1.ServicePort) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec:       corev1.ServiceSpec{Ports: ports},
	}
}

func TestKubeResolver_Resolve(t *testing.T) {
	tests := []struct {
		name     string
		objects  []runtime.Object
		portName string
		scheme   string
		want     string
		notFound bool
	}{
		{
			name: "named port",
			objects: []runtime.Object{service("prometheus", "monitoring",
				corev1.ServicePort{Name: "reloader", Port: 8080},
				corev1.ServicePort{Name: "web", Port: 9090},
			)},
			portName: "web",
			want:     "http://prometheus.monitoring.svc:9090",
		},
		{
			name: "falls back to first port",
			objects: []runtime.Object{service("prometheus", "monitoring",
				corev1.ServicePort{Name: "http", Port: 9091},
			)},
			portName: "web",
			scheme:   "https",
			want:     "https://prometheus.monitoring.svc:9091",
		},
		{
			name:     "missing service",
			portName: "web",
			notFound: true,
		},
		{
			name:     "service without ports",
			objects:  []runtime.Object{service("prometheus", "monitoring")},
			portName: "web",
			notFound: true,
		},
		{
			name: "service in another namespace",
			objects: []runtime.Object{service("prometheus", "default",
				corev1.ServicePort{Name: "web", Port: 9090},
			)},
			portName: "web",
			notFound: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := fake.NewSimpleClientset(tt.objects...)
			resolver := NewKubeResolver(zaptest.NewLogger(t), client, "monitoring", tt.portName, tt.scheme)

			got, err := resolver.Resolve(context.Background(), "prometheus")
			if tt.notFound {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrServiceNotFound))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKubeResolver_APIError(t *testing.T) {
	client := fake.NewSimpleClientset()
	client.PrependReactor("get", "services", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("connection refused")
	})

	resolver := NewKubeResolver(zaptest.NewLogger(t), client, "monitoring", "web", "")
	_, err := resolver.Resolve(context.Background(), "prometheus")

	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrServiceNotFound))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestStaticResolver(t *testing.T) {
	got, err := StaticResolver{URL: "http://prometheus:9090/"}.Resolve(context.Background(), "prometheus")
	require.NoError(t, err)
	assert.Equal(t, "http://prometheus:9090", got)

	_, err = StaticResolver{}.Resolve(context.Background(), "prometheus")
	assert.True(t, errors.Is(err, ErrServiceNotFound))
}
