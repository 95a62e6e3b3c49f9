package controller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"

	"github.com/iotedge/kube-agent/pkg/edge"
)

// ModuleStatus is the synthesized runtime status of a module.
type ModuleStatus string

const (
	StatusRunning ModuleStatus = "Running"
	StatusFailed  ModuleStatus = "Failed"
	StatusUnknown ModuleStatus = "Unknown"
)

// RuntimeRecord is the per-module runtime view synthesized from Pod
// events.
type RuntimeRecord struct {
	Name        string
	Status      ModuleStatus
	Description string
	ExitCode    int32
	StartTime   *time.Time
	ExitTime    *time.Time
	Image       string
}

// SystemInfo describes the cluster node the agent reports as its host.
type SystemInfo struct {
	OSType       string
	Architecture string
	Version      string
}

// StatusTracker maintains the module-name-to-runtime-record mapping fed by
// the Pod watch. The map is the only shared mutable state in the
// controller; a channel-based lock lets acquisition respect cancellation.
type StatusTracker struct {
	lock    chan struct{}
	records map[string]RuntimeRecord
}

// NewStatusTracker returns an empty tracker.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		lock:    make(chan struct{}, 1),
		records: make(map[string]RuntimeRecord),
	}
}

func (t *StatusTracker) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case t.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *StatusTracker) release() {
	<-t.lock
}

// HandlePodEvent folds one Pod watch event into the status map. Pods
// without the module identity label are ignored.
func (t *StatusTracker) HandlePodEvent(ctx context.Context, eventType watch.EventType, pod *corev1.Pod) error {
	if pod == nil {
		slog.Warn("dropping pod event with no payload", slog.String("type", string(eventType)))
		return nil
	}

	moduleName, ok := pod.Labels[edge.LabelModule]
	if !ok {
		return nil
	}

	if err := t.acquire(ctx); err != nil {
		return err
	}
	defer t.release()

	switch eventType {
	case watch.Deleted:
		delete(t.records, moduleName)
	default:
		t.records[moduleName] = synthesizeRecord(moduleName, pod)
	}
	trackedModules.Set(float64(len(t.records)))
	return nil
}

// GetModules returns a snapshot of the current runtime records. The
// snapshot is a copy; callers never observe later mutation.
func (t *StatusTracker) GetModules(ctx context.Context) ([]RuntimeRecord, error) {
	if err := t.acquire(ctx); err != nil {
		return nil, err
	}
	defer t.release()

	records := make([]RuntimeRecord, 0, len(t.records))
	for _, record := range t.records {
		records = append(records, record)
	}
	return records, nil
}

// synthesizeRecord derives the runtime record for a module from its Pod.
// The container matching the canonical module name carries the state and
// the observed image; its last state contributes timing and exit code.
func synthesizeRecord(moduleName string, pod *corev1.Pod) RuntimeRecord {
	record := RuntimeRecord{
		Name:        moduleName,
		Status:      StatusUnknown,
		Description: "unknown",
	}

	var containerStatus *corev1.ContainerStatus
	for i := range pod.Status.ContainerStatuses {
		if strings.EqualFold(pod.Status.ContainerStatuses[i].Name, moduleName) {
			containerStatus = &pod.Status.ContainerStatuses[i]
			break
		}
	}
	if containerStatus == nil {
		return record
	}

	record.Image = containerStatus.ImageID

	switch state := containerStatus.State; {
	case state.Running != nil:
		record.Status = StatusRunning
		record.Description = fmt.Sprintf("started at %s", state.Running.StartedAt.Time.Format(time.RFC3339))
	case state.Terminated != nil:
		record.Status = StatusFailed
		record.Description = state.Terminated.Message
	case state.Waiting != nil:
		record.Status = StatusFailed
		record.Description = state.Waiting.Message
	}

	switch last := containerStatus.LastTerminationState; {
	case last.Running != nil:
		start := last.Running.StartedAt.Time
		record.StartTime = &start
	case last.Terminated != nil:
		start := last.Terminated.StartedAt.Time
		finish := last.Terminated.FinishedAt.Time
		record.StartTime = &start
		record.ExitTime = &finish
		record.ExitCode = last.Terminated.ExitCode
	}

	return record
}

// GetSystemInfo reports the OS, architecture and kubelet version of the
// first cluster node.
func GetSystemInfo(ctx context.Context, client kubernetes.Interface) (*SystemInfo, error) {
	nodes, err := client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	if len(nodes.Items) == 0 {
		return nil, fmt.Errorf("cluster reports no nodes")
	}

	info := nodes.Items[0].Status.NodeInfo
	return &SystemInfo{
		OSType:       info.OperatingSystem,
		Architecture: info.Architecture,
		Version:      info.KubeletVersion,
	}, nil
}
