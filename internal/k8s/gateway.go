// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

// Package k8s implements the Cluster Gateway: the only component of
// the engine that touches the Kubernetes API. It hides the
// distinction between typed and dynamic access behind a small set of
// operations that speak in terms of (group, version, kind, name,
// namespace).
package k8s

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	fluxcache "github.com/fluxcd/pkg/cache"
	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/selection"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/apiutil"

	"github.com/flux-subsystem/workload-engine/internal/apierror"
)

const (
	inClusterNamespaceFile = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"

	// queueUIDLabel is set by Kueue on every Workload it creates for a
	// labelled owning resource.
	queueUIDLabel = "kueue.x-k8s.io/job-uid"

	discoveryCacheSize = 512
)

// GVK is a local alias kept for readability at call sites; it is
// exactly schema.GroupVersionKind.
type GVK = schema.GroupVersionKind

// Gateway wraps a single controller-runtime client plus the pieces
// needed for namespace discovery and raw pod log access. It is a
// process-wide singleton, safe for concurrent use by many in-flight
// requests at once (spec.md §5's "Shared resources" contract).
type Gateway struct {
	client    client.Client
	clientset kubernetes.Interface
	config    *rest.Config
	namespace string

	discoveryCache *fluxcache.LRU[bool]

	log logr.Logger
}

// Options configures Gateway construction.
type Options struct {
	// Kubeconfig, if non-empty, is used instead of in-cluster config.
	Kubeconfig string
	// Namespace, if non-empty, overrides namespace discovery.
	Namespace string
}

// New builds a Gateway. An explicit opts.Kubeconfig is used when set;
// otherwise it prefers an in-cluster rest.Config and falls back to the
// default kubeconfig context, mirroring cmd/mcp/client.go's newKubeClient.
func New(opts Options, l logr.Logger) (*Gateway, error) {
	cfg, err := restConfig(opts.Kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build rest config: %w", err)
	}
	cfg.QPS = 100
	cfg.Burst = 300

	sch := runtime.NewScheme()
	if err := scheme.AddToScheme(sch); err != nil {
		return nil, err
	}

	mapper, err := apiutil.NewDynamicRESTMapper(cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build REST mapper: %w", err)
	}

	c, err := client.New(cfg, client.Options{Scheme: sch, Mapper: mapper})
	if err != nil {
		return nil, fmt.Errorf("failed to build client: %w", err)
	}

	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build clientset: %w", err)
	}

	ns := opts.Namespace
	if ns == "" {
		ns, err = discoverNamespace(opts.Kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to discover namespace: %w", err)
		}
	}

	cache, err := fluxcache.NewLRU[bool](discoveryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to build discovery cache: %w", err)
	}

	return &Gateway{
		client:         c,
		clientset:      cs,
		config:         cfg,
		namespace:      ns,
		discoveryCache: cache,
		log:            l,
	}, nil
}

// NewForTesting builds a Gateway around an already-constructed client
// and clientset, bypassing restConfig/discoverNamespace entirely. It
// exists so other packages' tests can exercise real Gateway method
// bodies against a controller-runtime fake client instead of a live
// cluster.
func NewForTesting(c client.Client, cs kubernetes.Interface, namespace string, l logr.Logger) *Gateway {
	cache, err := fluxcache.NewLRU[bool](discoveryCacheSize)
	if err != nil {
		panic(fmt.Sprintf("failed to build discovery cache: %v", err))
	}
	return &Gateway{
		client:         c,
		clientset:      cs,
		namespace:      namespace,
		discoveryCache: cache,
		log:            l,
	}
}

func restConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig == "" {
		if cfg, err := rest.InClusterConfig(); err == nil {
			return cfg, nil
		}
	}
	flags := genericclioptions.NewConfigFlags(true)
	if kubeconfig != "" {
		flags.KubeConfig = &kubeconfig
	}
	return flags.ToRESTConfig()
}

// Namespace returns the effective namespace, as determined at
// construction time by discoverNamespace.
func (g *Gateway) Namespace() string { return g.namespace }

// discoverNamespace implements §4.1's namespace discovery rule:
// in-cluster service-account file first, external kubeconfig context
// second. Grounded on original_source's KubernetesService.namespace.
func discoverNamespace(kubeconfig string) (string, error) {
	if data, err := os.ReadFile(inClusterNamespaceFile); err == nil {
		ns := strings.TrimSpace(string(data))
		if ns != "" {
			return ns, nil
		}
	}

	flags := genericclioptions.NewConfigFlags(true)
	if kubeconfig != "" {
		flags.KubeConfig = &kubeconfig
	}
	rawConfig, err := flags.ToRawKubeConfigLoader().RawConfig()
	if err != nil {
		return "", fmt.Errorf("no in-cluster namespace and no usable kubeconfig context: %w", err)
	}
	ctx, ok := rawConfig.Contexts[rawConfig.CurrentContext]
	if !ok || ctx.Namespace == "" {
		return "default", nil
	}
	return ctx.Namespace, nil
}

// CreateBatchJob creates a batch/v1 Job from manifest in namespace ns.
func (g *Gateway) CreateBatchJob(ctx context.Context, ns string, manifest *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	return g.createUnstructured(ctx, ns, manifest)
}

// CreateCustomResource creates an arbitrary custom resource (e.g. a
// ray.io/v1 RayJob) from manifest in namespace ns.
func (g *Gateway) CreateCustomResource(ctx context.Context, ns string, manifest *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	return g.createUnstructured(ctx, ns, manifest)
}

func (g *Gateway) createUnstructured(ctx context.Context, ns string, manifest *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	manifest = manifest.DeepCopy()
	manifest.SetNamespace(ns)
	if err := g.client.Create(ctx, manifest, client.FieldOwner("workload-lifecycle-engine")); err != nil {
		return nil, apierror.Wrap(apierror.APIError, "failed to create resource", err)
	}
	return manifest, nil
}

// FindWorkloadByOwnerUID locates the Kueue Workload owned by the
// resource with the given uid, in namespace ns.
func (g *Gateway) FindWorkloadByOwnerUID(ctx context.Context, uid, ns string) (*unstructured.Unstructured, error) {
	list := &unstructured.UnstructuredList{}
	list.SetGroupVersionKind(schema.GroupVersionKind{Group: "kueue.x-k8s.io", Version: "v1beta1", Kind: "WorkloadList"})

	req, err := labels.NewRequirement(queueUIDLabel, selection.Equals, []string{uid})
	if err != nil {
		return nil, apierror.Wrap(apierror.APIError, "failed to build label selector", err)
	}
	selector := labels.NewSelector().Add(*req)

	if err := g.client.List(ctx, list, client.InNamespace(ns), client.MatchingLabelsSelector{Selector: selector}); err != nil {
		return nil, apierror.Wrap(apierror.APIError, "failed to list workloads", err)
	}
	if len(list.Items) == 0 {
		return nil, apierror.New(apierror.NotFound, fmt.Sprintf("no workload found for owner uid %q", uid))
	}
	item := list.Items[0]
	if _, found, _ := unstructured.NestedMap(item.Object, "status"); !found {
		return nil, apierror.New(apierror.NotFound, fmt.Sprintf("workload for owner uid %q has no status yet", uid))
	}
	return &item, nil
}

// ListWorkloads returns every Kueue Workload in namespace ns.
func (g *Gateway) ListWorkloads(ctx context.Context, ns string) ([]unstructured.Unstructured, error) {
	list := &unstructured.UnstructuredList{}
	list.SetGroupVersionKind(schema.GroupVersionKind{Group: "kueue.x-k8s.io", Version: "v1beta1", Kind: "WorkloadList"})
	if err := g.client.List(ctx, list, client.InNamespace(ns)); err != nil {
		return nil, apierror.Wrap(apierror.APIError, "failed to list workloads", err)
	}
	return list.Items, nil
}

// ResolveOwner fetches the owning resource referenced by ref in
// namespace ns as a generic unstructured object.
func (g *Gateway) ResolveOwner(ctx context.Context, ref metav1.OwnerReference, ns string) (*unstructured.Unstructured, error) {
	gv, err := schema.ParseGroupVersion(ref.APIVersion)
	if err != nil {
		return nil, apierror.Wrap(apierror.InvalidWorkload, fmt.Sprintf("unparseable owner apiVersion %q", ref.APIVersion), err)
	}
	obj := &unstructured.Unstructured{}
	obj.SetGroupVersionKind(gv.WithKind(ref.Kind))
	if err := g.client.Get(ctx, client.ObjectKey{Namespace: ns, Name: ref.Name}, obj); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, apierror.New(apierror.NotFound, fmt.Sprintf("owner %s/%s not found", ref.Kind, ref.Name))
		}
		return nil, apierror.Wrap(apierror.APIError, "failed to resolve owner", err)
	}
	return obj, nil
}

// ListPods lists pods in namespace ns matching selector.
func (g *Gateway) ListPods(ctx context.Context, ns string, selector labels.Selector) ([]corev1.Pod, error) {
	list := &corev1.PodList{}
	if err := g.client.List(ctx, list, client.InNamespace(ns), client.MatchingLabelsSelector{Selector: selector}); err != nil {
		return nil, apierror.Wrap(apierror.APIError, "failed to list pods", err)
	}
	return list.Items, nil
}

// ListJobs lists batch/v1 Jobs in namespace ns matching selector — used
// to locate a RayJob's submission Job.
func (g *Gateway) ListJobs(ctx context.Context, ns string, selector labels.Selector) ([]unstructured.Unstructured, error) {
	list := &unstructured.UnstructuredList{}
	list.SetGroupVersionKind(schema.GroupVersionKind{Group: "batch", Version: "v1", Kind: "JobList"})
	if err := g.client.List(ctx, list, client.InNamespace(ns), client.MatchingLabelsSelector{Selector: selector}); err != nil {
		return nil, apierror.Wrap(apierror.APIError, "failed to list jobs", err)
	}
	return list.Items, nil
}

// GetPodLogs fetches the full (or tail-limited) logs of pod in
// namespace ns in one shot.
func (g *Gateway) GetPodLogs(ctx context.Context, ns, pod string, tail int64) (string, error) {
	opts := &corev1.PodLogOptions{}
	if tail >= 0 {
		opts.TailLines = &tail
	}
	req := g.clientset.CoreV1().Pods(ns).GetLogs(pod, opts)
	stream, err := req.Stream(ctx)
	if err != nil {
		if apierrors.IsBadRequest(err) {
			return "", apierror.Wrap(apierror.PodNotReady, "pod not ready", err)
		}
		return "", apierror.Wrap(apierror.APIError, "failed to read pod logs", err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return "", apierror.Wrap(apierror.APIError, "failed to read pod log stream", err)
	}
	return string(data), nil
}

// StreamPodLogs opens a following log stream for pod in namespace ns.
// The returned io.ReadCloser yields bytes as they arrive and must be
// closed by the caller; closing it (or cancelling ctx) stops the
// underlying watch promptly.
func (g *Gateway) StreamPodLogs(ctx context.Context, ns, pod string, tail int64) (io.ReadCloser, error) {
	opts := &corev1.PodLogOptions{Follow: true}
	if tail >= 0 {
		opts.TailLines = &tail
	}
	req := g.clientset.CoreV1().Pods(ns).GetLogs(pod, opts)
	stream, err := req.Stream(ctx)
	if err != nil {
		if apierrors.IsBadRequest(err) {
			return nil, apierror.Wrap(apierror.PodNotReady, "pod not ready", err)
		}
		return nil, apierror.Wrap(apierror.APIError, "failed to open pod log stream", err)
	}
	return stream, nil
}

// Propagation enumerates the deletion cascading modes exposed by §4.1.
type Propagation string

const (
	Foreground Propagation = "Foreground"
	Background Propagation = "Background"
	Orphan     Propagation = "Orphan"
)

func (p Propagation) toClientOption() client.DeleteOption {
	switch p {
	case Foreground:
		return client.PropagationPolicy(metav1.DeletePropagationForeground)
	case Background:
		return client.PropagationPolicy(metav1.DeletePropagationBackground)
	case Orphan:
		return client.PropagationPolicy(metav1.DeletePropagationOrphan)
	default:
		return client.PropagationPolicy(metav1.DeletePropagationBackground)
	}
}

// DeleteResource deletes the resource identified by gvk/name/ns using
// the given cascading propagation policy, grounded on
// cmd/mcp/client/actions.go's DeleteResource but extended with an
// explicit propagation policy option.
func (g *Gateway) DeleteResource(ctx context.Context, gvk GVK, name, ns string, propagation Propagation) error {
	obj := &metav1.PartialObjectMetadata{}
	obj.SetGroupVersionKind(gvk)
	obj.SetName(name)
	obj.SetNamespace(ns)

	if err := g.client.Delete(ctx, obj, propagation.toClientOption()); err != nil {
		if apierrors.IsNotFound(err) {
			return apierror.New(apierror.NotFound, fmt.Sprintf("%s %q not found", gvk.Kind, name))
		}
		return apierror.Wrap(apierror.StopFailed, "failed to delete resource", err)
	}
	return nil
}

// QueueExists reports whether a Kueue LocalQueue named name exists in
// namespace ns, memoising the result for the lifetime of the process.
func (g *Gateway) QueueExists(ctx context.Context, ns, name string) bool {
	return g.customObjectExists(ctx, "localqueue:"+ns+"/"+name, func() bool {
		obj := &unstructured.Unstructured{}
		obj.SetGroupVersionKind(schema.GroupVersionKind{Group: "kueue.x-k8s.io", Version: "v1beta1", Kind: "LocalQueue"})
		err := g.client.Get(ctx, client.ObjectKey{Namespace: ns, Name: name}, obj)
		return err == nil
	})
}

// PriorityClassExists reports whether a cluster-scoped Kueue
// WorkloadPriorityClass named name exists.
func (g *Gateway) PriorityClassExists(ctx context.Context, name string) bool {
	return g.customObjectExists(ctx, "workloadpriorityclass:"+name, func() bool {
		obj := &unstructured.Unstructured{}
		obj.SetGroupVersionKind(schema.GroupVersionKind{Group: "kueue.x-k8s.io", Version: "v1beta1", Kind: "WorkloadPriorityClass"})
		err := g.client.Get(ctx, client.ObjectKey{Name: name}, obj)
		return err == nil
	})
}

func (g *Gateway) customObjectExists(ctx context.Context, key string, check func() bool) bool {
	if v, err := g.discoveryCache.Get(key); err == nil {
		return v
	}
	exists := check()
	_ = g.discoveryCache.Set(key, exists) // Set() does not return errors worth surfacing here.
	return exists
}
