package controller

import (
	"encoding/json"
	"log/slog"
	"maps"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"

	"github.com/iotedge/kube-agent/pkg/edge"
)

// ServiceDiff classifies desired vs. observed Services. Services are never
// updated in place: a changed service appears in both Delete and Create,
// and the reconciler's phase barrier guarantees the delete completes
// before the create starts.
type ServiceDiff struct {
	Create []*corev1.Service
	Delete []string
}

// DeploymentDiff classifies desired vs. observed Deployments. Updates
// carry the live object's resourceVersion for optimistic concurrency.
type DeploymentDiff struct {
	Create []*appsv1.Deployment
	Update []*appsv1.Deployment
	Delete []string
}

// DiffServices compares the desired Service set against the observed one.
func DiffServices(desired map[string]*corev1.Service, observed []corev1.Service) ServiceDiff {
	var diff ServiceDiff
	seen := make(map[string]bool, len(observed))

	for i := range observed {
		live := &observed[i]
		seen[live.Name] = true

		next, ok := desired[live.Name]
		if !ok {
			diff.Delete = append(diff.Delete, live.Name)
			continue
		}

		prev := previousService(live)
		if !serviceEqual(prev, next) {
			diff.Delete = append(diff.Delete, live.Name)
			diff.Create = append(diff.Create, next)
		}
	}

	for name, next := range desired {
		if !seen[name] {
			diff.Create = append(diff.Create, next)
		}
	}
	return diff
}

// DiffDeployments compares the desired Deployment set against the observed
// one.
func DiffDeployments(desired map[string]*appsv1.Deployment, observed []appsv1.Deployment) DeploymentDiff {
	var diff DeploymentDiff
	seen := make(map[string]bool, len(observed))

	for i := range observed {
		live := &observed[i]
		seen[live.Name] = true

		next, ok := desired[live.Name]
		if !ok {
			diff.Delete = append(diff.Delete, live.Name)
			continue
		}

		prev := previousDeployment(live)
		if !deploymentEqual(prev, next) {
			next.ResourceVersion = live.ResourceVersion
			diff.Update = append(diff.Update, next)
		}
	}

	for name, next := range desired {
		if !seen[name] {
			diff.Create = append(diff.Create, next)
		}
	}
	return diff
}

// previousService recovers the last-written desired Service from the
// creation-string annotation. When the annotation is missing or invalid,
// the live object stands in; it then fails the comparison and the pass
// issues one extra update (for a Service, a delete and re-create), which
// re-stamps the annotation.
func previousService(live *corev1.Service) *corev1.Service {
	raw, ok := live.Annotations[edge.CreationString]
	if !ok {
		slog.Warn("service has no creation annotation, using live object", slog.String("name", live.Name))
		return live
	}
	var prev corev1.Service
	if err := json.Unmarshal([]byte(raw), &prev); err != nil {
		slog.Warn("service has invalid creation annotation, using live object",
			slog.String("name", live.Name), slog.String("error", err.Error()))
		return live
	}
	return &prev
}

func previousDeployment(live *appsv1.Deployment) *appsv1.Deployment {
	raw, ok := live.Annotations[edge.CreationString]
	if !ok {
		slog.Warn("deployment has no creation annotation, using live object", slog.String("name", live.Name))
		return live
	}
	var prev appsv1.Deployment
	if err := json.Unmarshal([]byte(raw), &prev); err != nil {
		slog.Warn("deployment has invalid creation annotation, using live object",
			slog.String("name", live.Name), slog.String("error", err.Error()))
		return live
	}
	return &prev
}

// serviceEqual is the intentionally weak structural comparison for
// Services: identity, labels, service type and port count. Anything finer
// diffs against server-populated fields and churns.
func serviceEqual(prev, next *corev1.Service) bool {
	return prev.APIVersion == next.APIVersion &&
		prev.Kind == next.Kind &&
		prev.Name == next.Name &&
		maps.Equal(prev.Labels, next.Labels) &&
		prev.Spec.Type == next.Spec.Type &&
		len(prev.Spec.Ports) == len(next.Spec.Ports)
}

// deploymentEqual compares identity, labels, template identity and the
// container name/image pairs. Volumes and remaining container fields are
// ignored here; a missed diff self-heals on the next pass.
func deploymentEqual(prev, next *appsv1.Deployment) bool {
	if prev.APIVersion != next.APIVersion ||
		prev.Kind != next.Kind ||
		prev.Name != next.Name ||
		!maps.Equal(prev.Labels, next.Labels) {
		return false
	}

	if prev.Spec.Template.Name != next.Spec.Template.Name ||
		!maps.Equal(prev.Spec.Template.Labels, next.Spec.Template.Labels) {
		return false
	}

	prevContainers := prev.Spec.Template.Spec.Containers
	nextContainers := next.Spec.Template.Spec.Containers
	if len(prevContainers) != len(nextContainers) {
		return false
	}
	for i := range prevContainers {
		if prevContainers[i].Name != nextContainers[i].Name ||
			prevContainers[i].Image != nextContainers[i].Image {
			return false
		}
	}
	return true
}
