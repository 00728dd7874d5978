// Package kube observes Kubernetes workloads through client-go.
package kube

import (
	"context"
	"fmt"
	"slices"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/roach88/fleetcrawl/internal/connector"
	"github.com/roach88/fleetcrawl/internal/ir"
	"github.com/roach88/fleetcrawl/internal/logger"
)

// DefaultPageSize bounds every List call.
const DefaultPageSize = 500

// Config selects the cluster and the namespaces to crawl.
type Config struct {
	// Cluster is recorded in the cluster column of every object.
	Cluster string `yaml:"cluster"`
	// Kubeconfig is a kubeconfig path. Empty means in-cluster config.
	Kubeconfig string `yaml:"kubeconfig"`
	// Namespaces limits the crawl. Empty means all namespaces.
	Namespaces []string `yaml:"namespaces"`
	PageSize   int64    `yaml:"page_size"`
}

// Client lists workloads of one cluster.
type Client struct {
	cs         kubernetes.Interface
	cluster    string
	namespaces []string
	pageSize   int64
	log        logger.Logger
}

// NewClient wraps an existing clientset.
func NewClient(cs kubernetes.Interface, cfg Config, log logger.Logger) *Client {
	namespaces := slices.Clone(cfg.Namespaces)
	if len(namespaces) == 0 {
		namespaces = []string{metav1.NamespaceAll}
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Client{
		cs:         cs,
		cluster:    cfg.Cluster,
		namespaces: namespaces,
		pageSize:   pageSize,
		log:        log.WithComponent("kube").WithFields(map[string]any{"cluster": cfg.Cluster}),
	}
}

// Connect builds a clientset from the kubeconfig file, or from the
// in-cluster service account when no file is configured.
func Connect(cfg Config, log logger.Logger) (*Client, error) {
	var (
		restConfig *rest.Config
		err        error
	)
	if cfg.Kubeconfig == "" {
		restConfig, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("load in-cluster config: %w", err)
		}
	} else {
		restConfig, err = clientcmd.BuildConfigFromFlags("", cfg.Kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("load kubeconfig %s: %w", cfg.Kubeconfig, err)
		}
	}

	cs, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return NewClient(cs, cfg, log), nil
}

// Connectors returns one connector per Kubernetes entity type.
func (c *Client) Connectors() []connector.Connector {
	return []connector.Connector{
		connector.Func{Type: DeploymentEntity, Fn: c.observeDeployments},
		connector.Func{Type: ReplicaSetEntity, Fn: c.observeReplicaSets},
		connector.Func{Type: PodEntity, Fn: c.observePods},
		connector.Func{Type: ConfigMapEntity, Fn: c.observeConfigMaps},
	}
}

func (c *Client) observeDeployments(ctx context.Context) ([]ir.Observation, error) {
	var out []ir.Observation
	err := c.eachNamespace(func(ns string) error {
		opts := metav1.ListOptions{Limit: c.pageSize}
		for {
			list, err := c.cs.AppsV1().Deployments(ns).List(ctx, opts)
			if err != nil {
				return fmt.Errorf("list deployments: %w", err)
			}
			for i := range list.Items {
				d := &list.Items[i]
				o, err := c.observation(d, d.Spec, d.Status, nil)
				if err != nil {
					return err
				}
				out = append(out, o)
			}
			if opts.Continue = list.Continue; opts.Continue == "" {
				return nil
			}
		}
	})
	return out, err
}

func (c *Client) observeReplicaSets(ctx context.Context) ([]ir.Observation, error) {
	var out []ir.Observation
	err := c.eachNamespace(func(ns string) error {
		opts := metav1.ListOptions{Limit: c.pageSize}
		for {
			list, err := c.cs.AppsV1().ReplicaSets(ns).List(ctx, opts)
			if err != nil {
				return fmt.Errorf("list replica sets: %w", err)
			}
			for i := range list.Items {
				rs := &list.Items[i]
				o, err := c.observation(rs, rs.Spec, rs.Status, c.ownerRef(rs, OwnerKindDeployment, "deployment"))
				if err != nil {
					return err
				}
				out = append(out, o)
			}
			if opts.Continue = list.Continue; opts.Continue == "" {
				return nil
			}
		}
	})
	return out, err
}

func (c *Client) observePods(ctx context.Context) ([]ir.Observation, error) {
	var out []ir.Observation
	err := c.eachNamespace(func(ns string) error {
		opts := metav1.ListOptions{Limit: c.pageSize}
		for {
			list, err := c.cs.CoreV1().Pods(ns).List(ctx, opts)
			if err != nil {
				return fmt.Errorf("list pods: %w", err)
			}
			for i := range list.Items {
				p := &list.Items[i]
				o, err := c.observation(p, p.Spec, p.Status, c.ownerRef(p, OwnerKindReplicaSet, "replica_set"))
				if err != nil {
					return err
				}
				out = append(out, o)
			}
			if opts.Continue = list.Continue; opts.Continue == "" {
				return nil
			}
		}
	})
	return out, err
}

func (c *Client) observeConfigMaps(ctx context.Context) ([]ir.Observation, error) {
	var out []ir.Observation
	err := c.eachNamespace(func(ns string) error {
		opts := metav1.ListOptions{Limit: c.pageSize}
		for {
			list, err := c.cs.CoreV1().ConfigMaps(ns).List(ctx, opts)
			if err != nil {
				return fmt.Errorf("list config maps: %w", err)
			}
			for i := range list.Items {
				cm := &list.Items[i]
				spec := map[string]any{"data": cm.Data, "binary_data": cm.BinaryData}
				o, err := c.observation(cm, spec, nil, nil)
				if err != nil {
					return err
				}
				out = append(out, o)
			}
			if opts.Continue = list.Continue; opts.Continue == "" {
				return nil
			}
		}
	})
	return out, err
}

func (c *Client) eachNamespace(fn func(ns string) error) error {
	for _, ns := range c.namespaces {
		if err := fn(ns); err != nil {
			if ns != metav1.NamespaceAll {
				return fmt.Errorf("namespace %s: %w", ns, err)
			}
			return err
		}
	}
	return nil
}

// owner carries the owner kind column and, when the owner is of the
// expected kind, the reference to it.
type owner struct {
	kind      OwnerKind
	reference string
	uid       string
}

// ownerRef classifies the controlling owner of obj. Only an owner of the
// want kind becomes a reference.
func (c *Client) ownerRef(obj metav1.Object, want OwnerKind, reference string) *owner {
	kind, ref := controller(obj)
	o := &owner{kind: kind}
	switch {
	case kind == want:
		o.reference = reference
		o.uid = string(ref.UID)
	case kind == OwnerKindUnknown:
		c.log.Debug().
			Str("namespace", obj.GetNamespace()).
			Str("name", obj.GetName()).
			Str("owner_kind", ref.Kind).
			Msg("unrecognized owner kind")
	}
	return o
}

// observation builds the observation of one object. The definition is the
// whole object without managed fields and resource version, which change on
// every write.
func (c *Client) observation(obj runtime.Object, spec, status any, own *owner) (ir.Observation, error) {
	meta, ok := obj.(metav1.Object)
	if !ok {
		return ir.Observation{}, fmt.Errorf("%T has no object metadata", obj)
	}

	definition, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
	if err != nil {
		return ir.Observation{}, fmt.Errorf("convert %s/%s: %w", meta.GetNamespace(), meta.GetName(), err)
	}
	if m, ok := definition["metadata"].(map[string]any); ok {
		delete(m, "managedFields")
		delete(m, "resourceVersion")
	}

	o := ir.Observation{
		LogicalID:     string(meta.GetUID()),
		Definition:    definition,
		Specification: spec,
		Status:        status,
		Metadata: map[string]any{
			"labels":             meta.GetLabels(),
			"annotations":        meta.GetAnnotations(),
			"resource_version":   meta.GetResourceVersion(),
			"creation_timestamp": meta.GetCreationTimestamp().UTC(),
		},
		Columns: map[string]any{
			"cluster":   c.cluster,
			"namespace": meta.GetNamespace(),
			"name":      meta.GetName(),
		},
	}
	if own != nil {
		o.Columns["owner_kind"] = own.kind.String()
		if own.reference != "" {
			o.References = map[string]map[string]any{own.reference: {"node": own.uid}}
		}
	}
	return o, nil
}
