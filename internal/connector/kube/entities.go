package kube

import "github.com/roach88/fleetcrawl/internal/ir"

const nameExpression = "namespace || '/' || name"

func objectColumns(owned bool) []ir.Column {
	cols := []ir.Column{
		{Name: "cluster", Type: ir.ColumnText},
		{Name: "namespace", Type: ir.ColumnText},
		{Name: "name", Type: ir.ColumnText},
	}
	if owned {
		cols = append(cols, ir.Column{Name: "owner_kind", Type: ir.ColumnText})
	}
	return cols
}

// Entity types produced by the Kubernetes connectors. Owner references are
// optional: bare pods and replica sets have no controlling owner.
var (
	DeploymentEntity = ir.EntityType{
		Name:           "kube_deployment",
		Columns:        objectColumns(false),
		NameExpression: nameExpression,
	}
	ReplicaSetEntity = ir.EntityType{
		Name:    "kube_replica_set",
		Columns: objectColumns(true),
		References: []ir.Reference{
			{Name: "deployment", Target: "kube_deployment", Lookup: []string{"node"}, Optional: true},
		},
		NameExpression: nameExpression,
	}
	PodEntity = ir.EntityType{
		Name:    "kube_pod",
		Columns: objectColumns(true),
		References: []ir.Reference{
			{Name: "replica_set", Target: "kube_replica_set", Lookup: []string{"node"}, Optional: true},
		},
		NameExpression: nameExpression,
	}
	ConfigMapEntity = ir.EntityType{
		Name:           "kube_config_map",
		Columns:        objectColumns(false),
		NameExpression: nameExpression,
	}
)

// Entities lists every Kubernetes entity type in reference order.
func Entities() []ir.EntityType {
	return []ir.EntityType{DeploymentEntity, ReplicaSetEntity, PodEntity, ConfigMapEntity}
}
