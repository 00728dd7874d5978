package kube

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// OwnerKind is the kind of an object's controlling owner.
type OwnerKind int

const (
	OwnerKindNone OwnerKind = iota
	OwnerKindDeployment
	OwnerKindReplicaSet
	OwnerKindStatefulSet
	OwnerKindDaemonSet
	OwnerKindJob
	OwnerKindCronJob
	OwnerKindNode
	OwnerKindUnknown
)

var ownerKindNames = map[OwnerKind]string{
	OwnerKindNone:        "",
	OwnerKindDeployment:  "Deployment",
	OwnerKindReplicaSet:  "ReplicaSet",
	OwnerKindStatefulSet: "StatefulSet",
	OwnerKindDaemonSet:   "DaemonSet",
	OwnerKindJob:         "Job",
	OwnerKindCronJob:     "CronJob",
	OwnerKindNode:        "Node",
	OwnerKindUnknown:     "Unknown",
}

// String returns the Kubernetes kind name.
func (k OwnerKind) String() string {
	if s, ok := ownerKindNames[k]; ok {
		return s
	}
	return "Unknown"
}

// ParseOwnerKind maps a Kubernetes kind to an OwnerKind. Kinds the crawler
// does not know map to OwnerKindUnknown.
func ParseOwnerKind(kind string) OwnerKind {
	if kind == "" {
		return OwnerKindNone
	}
	for k, name := range ownerKindNames {
		if k != OwnerKindNone && k != OwnerKindUnknown && name == kind {
			return k
		}
	}
	return OwnerKindUnknown
}

// controller returns the controlling owner of obj, if any.
func controller(obj metav1.Object) (OwnerKind, *metav1.OwnerReference) {
	ref := metav1.GetControllerOf(obj)
	if ref == nil {
		return OwnerKindNone, nil
	}
	return ParseOwnerKind(ref.Kind), ref
}
