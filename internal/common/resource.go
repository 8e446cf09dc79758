package common

import (
	"math"
	"math/big"
	"sort"
	"strings"

	"k8s.io/apimachinery/pkg/api/resource"
)

// ComputeResources maps resource type (cpu, memory, disk) to quantity.
type ComputeResources map[string]resource.Quantity

func (a ComputeResources) Add(b ComputeResources) {
	for k, v := range b {
		existing, ok := a[k]
		if ok {
			existing.Add(v)
			a[k] = existing
		} else {
			a[k] = v.DeepCopy()
		}
	}
}

func (a ComputeResources) Sub(b ComputeResources) {
	for k, v := range b {
		existing, ok := a[k]
		if ok {
			existing.Sub(v)
			a[k] = existing
		} else {
			cpy := v.DeepCopy()
			cpy.Neg()
			a[k] = cpy
		}
	}
}

func (a ComputeResources) DeepCopy() ComputeResources {
	target := make(ComputeResources)
	for key, value := range a {
		target[key] = value.DeepCopy()
	}
	return target
}

func (a ComputeResources) AsFloat() ComputeResourcesFloat {
	target := make(ComputeResourcesFloat)
	for key, value := range a {
		target[key] = QuantityAsFloat64(value)
	}
	return target
}

func (a ComputeResources) String() string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		q := a[k]
		parts = append(parts, k+"="+q.String())
	}
	return strings.Join(parts, " ")
}

func QuantityAsFloat64(q resource.Quantity) float64 {
	dec := q.AsDec()
	unscaled := dec.UnscaledBig()
	scale := dec.Scale()
	unscaledFloat, _ := new(big.Float).SetInt(unscaled).Float64()
	return unscaledFloat * math.Pow10(-int(scale))
}

// ComputeResourcesFloat is the float version of ComputeResources, used for
// capacity accounting where subtraction below zero must be detectable.
type ComputeResourcesFloat map[string]float64

func (a ComputeResourcesFloat) IsValid() bool {
	valid := true
	for _, value := range a {
		valid = valid && value >= 0
	}
	return valid
}

func (a ComputeResourcesFloat) Sub(b ComputeResourcesFloat) {
	for k, v := range b {
		existing, ok := a[k]
		if ok {
			a[k] = existing - v
		} else {
			a[k] = -v
		}
	}
}

func (a ComputeResourcesFloat) Add(b ComputeResourcesFloat) {
	for k, v := range b {
		existing, ok := a[k]
		if ok {
			a[k] = existing + v
		} else {
			a[k] = v
		}
	}
}

func (a ComputeResourcesFloat) DeepCopy() ComputeResourcesFloat {
	target := make(ComputeResourcesFloat)
	for key, value := range a {
		target[key] = value
	}
	return target
}

func (a ComputeResourcesFloat) IsLessThan(b ComputeResourcesFloat) bool {
	reduced := a.DeepCopy()
	reduced.Sub(b)
	return !reduced.IsValid()
}

func (a ComputeResourcesFloat) LimitWith(limit ComputeResourcesFloat) ComputeResourcesFloat {
	target := make(ComputeResourcesFloat)
	for key, value := range a {
		target[key] = math.Min(value, limit[key])
	}
	return target
}
