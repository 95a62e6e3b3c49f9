package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"

	"github.com/iotedge/kube-agent/pkg/edge"
)

// DeploymentGVR identifies the watched custom resource.
var DeploymentGVR = schema.GroupVersionResource{
	Group:    edge.CRDGroup,
	Version:  edge.CRDVersion,
	Resource: edge.CRDPlural,
}

// Supervisor owns the two watch streams: the cluster-scoped EdgeDeployment
// watch feeding the reconciler and the namespaced Pod watch feeding the
// status tracker. Initial establishment failure is fatal; a stream that
// closes later is re-established, rate-limited, from the last seen
// resourceVersion.
type Supervisor struct {
	client     kubernetes.Interface
	dyn        dynamic.Interface
	namespace  string
	reconciler *Reconciler
	tracker    *StatusTracker
	limiter    *rate.Limiter

	fatal  chan error
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	watchers map[string]watch.Interface
	closed   bool
}

// NewSupervisor wires a supervisor over the given clients and handlers.
func NewSupervisor(client kubernetes.Interface, dyn dynamic.Interface, namespace string, reconciler *Reconciler, tracker *StatusTracker) *Supervisor {
	return &Supervisor{
		client:     client,
		dyn:        dyn,
		namespace:  namespace,
		reconciler: reconciler,
		tracker:    tracker,
		limiter:    rate.NewLimiter(rate.Limit(1), 3),
		fatal:      make(chan error, 1),
		watchers:   make(map[string]watch.Interface),
	}
}

// Start opens both watches and launches their event loops. It returns
// without waiting for a first event; watches block until something
// happens, and the initial EdgeDeployment must be handled as soon as it
// arrives.
func (s *Supervisor) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	podWatch, err := s.client.CoreV1().Pods(s.namespace).Watch(ctx, metav1.ListOptions{})
	if err != nil || podWatch == nil {
		return Fatal("failed to establish pod watch: %v", err)
	}

	crWatch, err := s.dyn.Resource(DeploymentGVR).Watch(ctx, metav1.ListOptions{})
	if err != nil || crWatch == nil {
		podWatch.Stop()
		return Fatal("failed to establish deployment watch: %v", err)
	}

	s.setWatcher("pods", podWatch)
	s.setWatcher("deployments", crWatch)

	s.wg.Add(2)
	go s.runPodStream(ctx, podWatch)
	go s.runDeploymentStream(ctx, crWatch)
	return nil
}

// setWatcher records the current watch for a stream so Close can stop it;
// watch channels do not observe context cancellation on their own.
func (s *Supervisor) setWatcher(stream string, w watch.Interface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		w.Stop()
		return
	}
	s.watchers[stream] = w
}

// Fatal exposes the channel a fatal handler failure is reported on. The
// process is expected to exit when it fires.
func (s *Supervisor) Fatal() <-chan error {
	return s.fatal
}

// Close stops both watches and waits for the event loops to drain, up to
// the caller's cancellation.
func (s *Supervisor) Close(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	s.closed = true
	for _, w := range s.watchers {
		w.Stop()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("watch streams did not drain: %w", ctx.Err())
	}
}

func (s *Supervisor) runPodStream(ctx context.Context, w watch.Interface) {
	defer s.wg.Done()
	session := uuid.NewString()[:8]
	slog.Info("pod watch running", slog.String("session", session), slog.String("namespace", s.namespace))

	lastRV := ""
	for {
		for event := range w.ResultChan() {
			pod, ok := event.Object.(*corev1.Pod)
			if ok {
				lastRV = pod.ResourceVersion
			}
			s.dispatch(session, func() error {
				return s.tracker.HandlePodEvent(ctx, event.Type, pod)
			})
		}
		w.Stop()

		w = s.reestablish(ctx, "pods", session, func() (watch.Interface, error) {
			return s.client.CoreV1().Pods(s.namespace).Watch(ctx, metav1.ListOptions{ResourceVersion: lastRV})
		})
		if w == nil {
			return
		}
		s.setWatcher("pods", w)
	}
}

func (s *Supervisor) runDeploymentStream(ctx context.Context, w watch.Interface) {
	defer s.wg.Done()
	session := uuid.NewString()[:8]
	slog.Info("deployment watch running", slog.String("session", session))

	lastRV := ""
	for {
		for event := range w.ResultChan() {
			var dep *edge.EdgeDeployment
			if obj, ok := event.Object.(*unstructured.Unstructured); ok {
				lastRV = obj.GetResourceVersion()

				decoded, err := edge.FromUnstructured(obj)
				if err != nil {
					slog.Error("dropping undecodable deployment event",
						slog.String("session", session), slog.String("error", err.Error()))
					continue
				}
				dep = decoded
			}
			s.dispatch(session, func() error {
				return s.reconciler.HandleEvent(ctx, event.Type, dep)
			})
		}
		w.Stop()

		w = s.reestablish(ctx, "deployments", session, func() (watch.Interface, error) {
			return s.dyn.Resource(DeploymentGVR).Watch(ctx, metav1.ListOptions{ResourceVersion: lastRV})
		})
		if w == nil {
			return
		}
		s.setWatcher("deployments", w)
	}
}

// dispatch runs one handler, absorbing everything except fatal errors.
func (s *Supervisor) dispatch(session string, handler func() error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("handler panicked", slog.String("session", session), slog.Any("panic", r))
		}
	}()

	if err := handler(); err != nil {
		if IsFatal(err) {
			select {
			case s.fatal <- err:
			default:
			}
			return
		}
		slog.Error("handler failed", slog.String("session", session), slog.String("error", err.Error()))
	}
}

// reestablish reopens a closed watch stream, rate-limited. Returns nil
// once the supervisor is shutting down.
func (s *Supervisor) reestablish(ctx context.Context, stream, session string, open func() (watch.Interface, error)) watch.Interface {
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil
		}

		w, err := open()
		if err != nil || w == nil {
			slog.Warn("failed to re-establish watch",
				slog.String("stream", stream),
				slog.String("session", session),
				slog.String("error", fmt.Sprintf("%v", err)))
			continue
		}

		watchRestartTotal.WithLabelValues(stream).Inc()
		slog.Info("watch re-established", slog.String("stream", stream), slog.String("session", session))
		return w
	}
}
