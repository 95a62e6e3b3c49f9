package edge

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

// ParsePortProto splits a docker "port/proto" key into a typed port and
// protocol. Valid protocols are TCP, UDP and SCTP, case-insensitive.
func ParsePortProto(s string) (int32, corev1.Protocol, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("invalid port specification %q", s)
	}

	port, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil || port < 0 {
		return 0, "", fmt.Errorf("invalid port number in %q", s)
	}

	switch strings.ToUpper(parts[1]) {
	case "TCP":
		return int32(port), corev1.ProtocolTCP, nil
	case "UDP":
		return int32(port), corev1.ProtocolUDP, nil
	case "SCTP":
		return int32(port), corev1.ProtocolSCTP, nil
	default:
		return 0, "", fmt.Errorf("invalid protocol in %q", s)
	}
}

// ServicePorts derives the service ports for a module from its exposed
// ports and host-port bindings, along with the service type. Exposed ports
// target the container port itself; a host-port binding for the same
// container port overrides the target with the host port and flips the
// service to NodePort. Malformed entries are dropped and logged.
func ServicePorts(opts CreateOptions) ([]corev1.ServicePort, corev1.ServiceType) {
	byKey := make(map[string]corev1.ServicePort)

	for key := range opts.ExposedPorts {
		port, proto, err := ParsePortProto(key)
		if err != nil {
			slog.Warn("dropping invalid exposed port", slog.String("port", key), slog.String("error", err.Error()))
			continue
		}
		byKey[portKey(port, proto)] = corev1.ServicePort{
			Name:       portName(port, proto),
			Port:       port,
			TargetPort: intstr.FromInt32(port),
			Protocol:   proto,
		}
	}

	serviceType := corev1.ServiceTypeClusterIP
	if opts.HostConfig != nil {
		for key, bindings := range opts.HostConfig.PortBindings {
			port, proto, err := ParsePortProto(key)
			if err != nil {
				slog.Warn("dropping invalid port binding", slog.String("port", key), slog.String("error", err.Error()))
				continue
			}
			for _, binding := range bindings {
				hostPort, err := strconv.ParseInt(binding.HostPort, 10, 32)
				if err != nil {
					slog.Warn("dropping invalid host port",
						slog.String("port", key),
						slog.String("hostPort", binding.HostPort))
					continue
				}
				byKey[portKey(port, proto)] = corev1.ServicePort{
					Name:       portName(port, proto),
					Port:       port,
					TargetPort: intstr.FromInt32(int32(hostPort)),
					Protocol:   proto,
				}
				serviceType = corev1.ServiceTypeNodePort
			}
		}
	}

	if len(byKey) == 0 {
		return nil, serviceType
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ports := make([]corev1.ServicePort, 0, len(keys))
	for _, k := range keys {
		ports = append(ports, byKey[k])
	}
	return ports, serviceType
}

// ContainerPorts derives the module container's ports from its exposed
// ports only; host bindings do not surface on the container.
func ContainerPorts(opts CreateOptions) []corev1.ContainerPort {
	keys := make([]string, 0, len(opts.ExposedPorts))
	for key := range opts.ExposedPorts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var ports []corev1.ContainerPort
	for _, key := range keys {
		port, proto, err := ParsePortProto(key)
		if err != nil {
			slog.Warn("dropping invalid exposed port", slog.String("port", key), slog.String("error", err.Error()))
			continue
		}
		ports = append(ports, corev1.ContainerPort{
			ContainerPort: port,
			Protocol:      proto,
		})
	}
	return ports
}

func portKey(port int32, proto corev1.Protocol) string {
	return fmt.Sprintf("%d/%s", port, proto)
}

func portName(port int32, proto corev1.Protocol) string {
	return fmt.Sprintf("%s-%d", strings.ToLower(string(proto)), port)
}
