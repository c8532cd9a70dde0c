package driver

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/shipyard-dev/harbor/internal/domain/harbor"
	"github.com/shipyard-dev/harbor/internal/infrastructure/config"
)

const serviceAccountNamespaceFile = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"

// kubernetesDriver runs ships as pods with a PVC-backed workspace. Intended
// for in-cluster deployment where the harbor can reach pod IPs directly.
type kubernetesDriver struct {
	cfg       *config.DriverConfig
	clientset kubernetes.Interface
	namespace string
	log       *logrus.Entry
}

func newKubernetesDriver(cfg *config.DriverConfig, log *logrus.Logger) *kubernetesDriver {
	return &kubernetesDriver{
		cfg:       cfg,
		namespace: currentNamespace(cfg),
		log:       log.WithField("component", "kubernetes-driver"),
	}
}

// currentNamespace prefers the in-cluster service account namespace over the
// configured one.
func currentNamespace(cfg *config.DriverConfig) string {
	if data, err := os.ReadFile(serviceAccountNamespaceFile); err == nil {
		if ns := strings.TrimSpace(string(data)); ns != "" {
			return ns
		}
	}
	return cfg.Kube.Namespace
}

func (d *kubernetesDriver) Initialize(ctx context.Context) error {
	if d.clientset != nil {
		return nil
	}

	restCfg, err := rest.InClusterConfig()
	if err != nil {
		path := d.cfg.Kube.ConfigPath
		if path == "" {
			path = clientcmd.RecommendedHomeFile
		}
		restCfg, err = clientcmd.BuildConfigFromFlags("", path)
		if err != nil {
			return fmt.Errorf("%w: %v", harbor.ErrDriverInit, err)
		}
		d.log.WithField("kubeconfig", path).Info("loaded kubeconfig")
	} else {
		d.log.Info("loaded in-cluster kubernetes config")
	}

	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return fmt.Errorf("%w: %v", harbor.ErrDriverInit, err)
	}

	if _, err := clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{Limit: 1}); err != nil {
		return fmt.Errorf("%w: %v", harbor.ErrDriverInit, err)
	}

	d.clientset = clientset
	d.log.WithField("namespace", d.namespace).Info("kubernetes driver initialized")
	return nil
}

func (d *kubernetesDriver) Close() error {
	d.clientset = nil
	return nil
}

func (d *kubernetesDriver) CreateShipContainer(ctx context.Context, ship *harbor.Ship, spec *harbor.ShipSpec) (*ContainerInfo, error) {
	if err := d.Initialize(ctx); err != nil {
		return nil, err
	}

	podName := "ship-" + ship.ID
	pvcName := podName

	pvc, err := d.buildPVC(ship.ID, spec)
	if err != nil {
		return nil, err
	}

	_, err = d.clientset.CoreV1().PersistentVolumeClaims(d.namespace).Create(ctx, pvc, metav1.CreateOptions{})
	if err != nil {
		if apierrors.IsAlreadyExists(err) {
			d.log.WithField("pvc", pvcName).Warn("PVC already exists, reusing")
		} else {
			return nil, fmt.Errorf("failed to create PVC for ship %s: %w", ship.ID, err)
		}
	}

	pod, err := d.buildPod(ship, spec)
	if err != nil {
		return nil, err
	}

	_, err = d.clientset.CoreV1().Pods(d.namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		if apierrors.IsAlreadyExists(err) {
			d.log.WithField("pod", podName).Warn("pod already exists")
		} else {
			// Leave no orphan volume behind a failed pod create
			d.deletePVC(context.Background(), pvcName)
			return nil, fmt.Errorf("failed to create pod for ship %s: %w", ship.ID, err)
		}
	}

	address, err := d.waitForPodReady(ctx, podName)
	if err != nil {
		d.deletePod(context.Background(), podName)
		d.deletePVC(context.Background(), pvcName)
		return nil, err
	}

	d.log.WithFields(logrus.Fields{
		"ship_id": ship.ID,
		"pod":     podName,
		"address": address,
	}).Info("ship pod ready")

	return &ContainerInfo{ContainerID: podName, Address: address, Status: "running"}, nil
}

func (d *kubernetesDriver) buildPVC(shipID string, spec *harbor.ShipSpec) (*corev1.PersistentVolumeClaim, error) {
	size := d.cfg.Kube.PVCSize
	if spec != nil && spec.Disk != "" {
		normalized, err := NormalizeDiskForKubernetes(spec.Disk, d.log.Logger)
		if err != nil {
			return nil, err
		}
		size = normalized
	}

	quantity, err := resource.ParseQuantity(size)
	if err != nil {
		return nil, fmt.Errorf("invalid PVC size %q: %w", size, err)
	}

	pvc := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name: "ship-" + shipID,
			Labels: map[string]string{
				"app":     "ship",
				"ship_id": shipID,
			},
		},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{corev1.ResourceStorage: quantity},
			},
		},
	}
	if d.cfg.Kube.StorageClass != "" {
		sc := d.cfg.Kube.StorageClass
		pvc.Spec.StorageClassName = &sc
	}
	return pvc, nil
}

func (d *kubernetesDriver) buildPod(ship *harbor.Ship, spec *harbor.ShipSpec) (*corev1.Pod, error) {
	podName := "ship-" + ship.ID

	resources := corev1.ResourceRequirements{
		Requests: corev1.ResourceList{},
		Limits:   corev1.ResourceList{},
	}
	if spec != nil && spec.CPUs > 0 {
		cpu, err := resource.ParseQuantity(strconv.FormatFloat(spec.CPUs, 'f', -1, 64))
		if err != nil {
			return nil, fmt.Errorf("invalid cpu request %v: %w", spec.CPUs, err)
		}
		resources.Requests[corev1.ResourceCPU] = cpu
		resources.Limits[corev1.ResourceCPU] = cpu
	}
	if spec != nil && spec.Memory != "" {
		// A bare "m" means milli-bytes to the apiserver, never send it raw
		normalized, err := NormalizeMemoryForKubernetes(spec.Memory, d.log.Logger)
		if err != nil {
			return nil, err
		}
		mem, err := resource.ParseQuantity(normalized)
		if err != nil {
			return nil, fmt.Errorf("invalid memory request %q: %w", normalized, err)
		}
		resources.Requests[corev1.ResourceMemory] = mem
		resources.Limits[corev1.ResourceMemory] = mem
	}

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name: podName,
			Labels: map[string]string{
				"app":     "ship",
				"ship_id": ship.ID,
			},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{
				{
					Name:            "ship",
					Image:           d.cfg.Image,
					ImagePullPolicy: corev1.PullPolicy(d.cfg.Kube.ImagePullPolicy),
					Env: []corev1.EnvVar{
						{Name: "SHIP_ID", Value: ship.ID},
						{Name: "TTL", Value: strconv.Itoa(ship.TTL)},
					},
					Resources: resources,
					VolumeMounts: []corev1.VolumeMount{
						{Name: "workspace", MountPath: "/workspace"},
					},
				},
			},
			Volumes: []corev1.Volume{
				{
					Name: "workspace",
					VolumeSource: corev1.VolumeSource{
						PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
							ClaimName: podName,
						},
					},
				},
			},
		},
	}
	return pod, nil
}

// waitForPodReady polls until the pod is Running with every container ready,
// then returns the pod IP.
func (d *kubernetesDriver) waitForPodReady(ctx context.Context, podName string) (string, error) {
	deadline := time.Now().Add(d.cfg.Kube.ReadyTimeout)
	for {
		pod, err := d.clientset.CoreV1().Pods(d.namespace).Get(ctx, podName, metav1.GetOptions{})
		if err != nil {
			d.log.WithError(err).WithField("pod", podName).Warn("error checking pod status")
		} else {
			switch pod.Status.Phase {
			case corev1.PodRunning:
				if pod.Status.PodIP != "" && allContainersReady(pod) {
					return pod.Status.PodIP, nil
				}
			case corev1.PodFailed, corev1.PodSucceeded:
				return "", fmt.Errorf("pod %s entered terminal phase %s", podName, pod.Status.Phase)
			}
		}

		if time.Now().After(deadline) {
			d.log.WithField("pod", podName).Error("pod did not become ready within timeout")
			return "", harbor.ErrAddressUnavailable
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(d.cfg.Kube.ReadyPollInterval):
		}
	}
}

func allContainersReady(pod *corev1.Pod) bool {
	if len(pod.Status.ContainerStatuses) == 0 {
		return false
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if !cs.Ready {
			return false
		}
	}
	return true
}

func (d *kubernetesDriver) StopShipContainer(ctx context.Context, containerID string) error {
	if err := d.Initialize(ctx); err != nil {
		return err
	}

	// The container handle is the pod name; the PVC shares it
	if !d.deletePod(ctx, containerID) {
		return fmt.Errorf("failed to delete pod %s", containerID)
	}
	if !d.deletePVC(ctx, containerID) {
		return fmt.Errorf("failed to delete PVC %s", containerID)
	}
	return nil
}

func (d *kubernetesDriver) IsContainerRunning(ctx context.Context, containerID string) (bool, error) {
	if err := d.Initialize(ctx); err != nil {
		return false, err
	}

	pod, err := d.clientset.CoreV1().Pods(d.namespace).Get(ctx, containerID, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check pod %s: %w", containerID, err)
	}
	return pod.Status.Phase == corev1.PodRunning, nil
}

func (d *kubernetesDriver) GetContainerLogs(ctx context.Context, containerID string) (string, error) {
	if err := d.Initialize(ctx); err != nil {
		return "", err
	}

	tail := int64(1000)
	raw, err := d.clientset.CoreV1().Pods(d.namespace).
		GetLogs(containerID, &corev1.PodLogOptions{TailLines: &tail}).
		Do(ctx).Raw()
	if err != nil {
		if apierrors.IsNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read logs for pod %s: %w", containerID, err)
	}
	return string(raw), nil
}

// ShipDataExists cannot check a PVC without an API round trip here, so it
// answers true; the PVC create path reuses an existing claim anyway.
func (d *kubernetesDriver) ShipDataExists(shipID string) bool {
	return true
}

// DeleteShipData removes the ship's PVC; the bound volume follows its
// reclaim policy.
func (d *kubernetesDriver) DeleteShipData(ctx context.Context, shipID string) error {
	if err := d.Initialize(ctx); err != nil {
		return err
	}
	if !d.deletePVC(ctx, "ship-"+shipID) {
		return fmt.Errorf("failed to delete PVC for ship %s", shipID)
	}
	return nil
}

func (d *kubernetesDriver) deletePod(ctx context.Context, podName string) bool {
	grace := int64(0)
	err := d.clientset.CoreV1().Pods(d.namespace).Delete(ctx, podName, metav1.DeleteOptions{
		GracePeriodSeconds: &grace,
	})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return true
		}
		d.log.WithError(err).WithField("pod", podName).Error("failed to delete pod")
		return false
	}
	return true
}

func (d *kubernetesDriver) deletePVC(ctx context.Context, pvcName string) bool {
	err := d.clientset.CoreV1().PersistentVolumeClaims(d.namespace).Delete(ctx, pvcName, metav1.DeleteOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return true
		}
		d.log.WithError(err).WithField("pvc", pvcName).Error("failed to delete PVC")
		return false
	}
	return true
}
