package controller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"

	"github.com/iotedge/kube-agent/pkg/edge"
)

// Reconciler converts EdgeDeployment events into create/update/delete
// operations on the owned Deployments, Services and Secrets. It holds no
// state between events; the cluster (via the creation-string annotation)
// is the only memory.
type Reconciler struct {
	client       kubernetes.Interface
	namespace    string
	resourceName string
	selector     string
	settings     Settings
}

// NewReconciler builds a reconciler serving the device identified by the
// hub hostname and device id.
func NewReconciler(client kubernetes.Interface, namespace, hubHostname, deviceID string, settings Settings) *Reconciler {
	return &Reconciler{
		client:       client,
		namespace:    namespace,
		resourceName: edge.ResourceName(hubHostname, deviceID),
		selector:     edge.DeviceSelector(hubHostname, deviceID),
		settings:     settings,
	}
}

// HandleEvent is the entry point for one CR watch event.
func (r *Reconciler) HandleEvent(ctx context.Context, eventType watch.EventType, dep *edge.EdgeDeployment) error {
	if eventType == watch.Error {
		slog.Error("error event on deployment watch stream")
		return nil
	}

	if dep == nil {
		slog.Warn("dropping deployment event with no payload", slog.String("type", string(eventType)))
		return nil
	}

	if dep.Metadata.Name != r.resourceName {
		slog.Debug("ignoring deployment for another device",
			slog.String("name", dep.Metadata.Name),
			slog.String("serving", r.resourceName))
		return nil
	}

	start := time.Now()
	defer func() {
		reconcileDuration.Observe(time.Since(start).Seconds())
	}()

	switch eventType {
	case watch.Deleted:
		return r.deleteAll(ctx)
	case watch.Added, watch.Modified:
		return r.converge(ctx, dep)
	default:
		slog.Debug("ignoring deployment event", slog.String("type", string(eventType)))
		return nil
	}
}

// deleteAll removes every owned Service and Deployment for the device.
func (r *Reconciler) deleteAll(ctx context.Context) error {
	services, deployments, err := r.listOwned(ctx)
	if err != nil {
		return err
	}

	serviceNames := make([]string, 0, len(services.Items))
	for _, svc := range services.Items {
		serviceNames = append(serviceNames, svc.Name)
	}
	deploymentNames := make([]string, 0, len(deployments.Items))
	for _, dep := range deployments.Items {
		deploymentNames = append(deploymentNames, dep.Name)
	}

	r.deleteServices(ctx, serviceNames)
	r.deleteDeployments(ctx, deploymentNames)
	return nil
}

// converge is one full reconciliation: list, diff, apply in phases.
// Deletes complete before creates, creates before updates; each batch in a
// phase runs concurrently and a failure inside a batch is logged without
// aborting it — the next event re-converges.
func (r *Reconciler) converge(ctx context.Context, dep *edge.EdgeDeployment) error {
	services, deployments, err := r.listOwned(ctx)
	if err != nil {
		return err
	}

	desired, err := Synthesize(dep.Spec, r.settings)
	if err != nil {
		return fmt.Errorf("failed to synthesize desired state: %w", err)
	}

	reconcileSecrets(ctx, r.client, desired.Secrets)

	serviceDiff := DiffServices(desired.Services, services.Items)
	deploymentDiff := DiffDeployments(desired.Deployments, deployments.Items)

	slog.Info("reconciling",
		slog.String("resource", r.resourceName),
		slog.Int("serviceCreates", len(serviceDiff.Create)),
		slog.Int("serviceDeletes", len(serviceDiff.Delete)),
		slog.Int("deploymentCreates", len(deploymentDiff.Create)),
		slog.Int("deploymentUpdates", len(deploymentDiff.Update)),
		slog.Int("deploymentDeletes", len(deploymentDiff.Delete)))

	r.deleteServices(ctx, serviceDiff.Delete)
	r.deleteDeployments(ctx, deploymentDiff.Delete)
	r.createServices(ctx, serviceDiff.Create)
	r.createDeployments(ctx, deploymentDiff.Create)
	r.updateDeployments(ctx, deploymentDiff.Update)
	return nil
}

func (r *Reconciler) listOwned(ctx context.Context) (*corev1.ServiceList, *appsv1.DeploymentList, error) {
	opts := metav1.ListOptions{LabelSelector: r.selector}

	services, err := r.client.CoreV1().Services(r.namespace).List(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list owned services: %w", err)
	}
	deployments, err := r.client.AppsV1().Deployments(r.namespace).List(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list owned deployments: %w", err)
	}
	return services, deployments, nil
}

func (r *Reconciler) deleteServices(ctx context.Context, names []string) {
	var g errgroup.Group
	for _, name := range names {
		g.Go(func() error {
			err := r.client.CoreV1().Services(r.namespace).Delete(ctx, name, metav1.DeleteOptions{})
			observeAPIOperation("delete", "Service", err)
			if err != nil {
				slog.Error("failed to delete service", slog.String("name", name), slog.String("error", err.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Reconciler) deleteDeployments(ctx context.Context, names []string) {
	var g errgroup.Group
	for _, name := range names {
		g.Go(func() error {
			err := r.client.AppsV1().Deployments(r.namespace).Delete(ctx, name, metav1.DeleteOptions{})
			observeAPIOperation("delete", "Deployment", err)
			if err != nil {
				slog.Error("failed to delete deployment", slog.String("name", name), slog.String("error", err.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Reconciler) createServices(ctx context.Context, services []*corev1.Service) {
	var g errgroup.Group
	for _, svc := range services {
		g.Go(func() error {
			_, err := r.client.CoreV1().Services(r.namespace).Create(ctx, svc, metav1.CreateOptions{})
			observeAPIOperation("create", "Service", err)
			if err != nil {
				slog.Error("failed to create service", slog.String("name", svc.Name), slog.String("error", err.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Reconciler) createDeployments(ctx context.Context, deployments []*appsv1.Deployment) {
	var g errgroup.Group
	for _, dep := range deployments {
		g.Go(func() error {
			_, err := r.client.AppsV1().Deployments(r.namespace).Create(ctx, dep, metav1.CreateOptions{})
			observeAPIOperation("create", "Deployment", err)
			if err != nil {
				slog.Error("failed to create deployment", slog.String("name", dep.Name), slog.String("error", err.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Reconciler) updateDeployments(ctx context.Context, deployments []*appsv1.Deployment) {
	var g errgroup.Group
	for _, dep := range deployments {
		g.Go(func() error {
			_, err := r.client.AppsV1().Deployments(r.namespace).Update(ctx, dep, metav1.UpdateOptions{})
			observeAPIOperation("update", "Deployment", err)
			if err != nil {
				slog.Error("failed to update deployment", slog.String("name", dep.Name), slog.String("error", err.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()
}
