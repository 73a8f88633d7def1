// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

package users

// Plan is a subscription tier.
type Plan string

// Plan tiers, lowest first.
const (
	PlanFree   Plan = "free"
	PlanNormal Plan = "normal"
	PlanPro    Plan = "pro"
	PlanProMax Plan = "promax"
)

// Unlimited marks a quota without an upper bound.
const Unlimited = -1

// Features is the entitlement table attached to a plan.
type Features struct {
	DNSRecords       int    `json:"dnsRecords"`
	WireguardConfigs int    `json:"wireguardConfigs"`
	Support          string `json:"support"`
	Priority         string `json:"priority"`
}

var planFeatures = map[Plan]Features{
	PlanFree:   {DNSRecords: 1, WireguardConfigs: 0, Support: "ticket", Priority: "low"},
	PlanNormal: {DNSRecords: 5, WireguardConfigs: 1, Support: "ticket", Priority: "normal"},
	PlanPro:    {DNSRecords: 15, WireguardConfigs: 3, Support: "priority", Priority: "high"},
	PlanProMax: {DNSRecords: Unlimited, WireguardConfigs: 10, Support: "24/7", Priority: "highest"},
}

var planRank = map[Plan]int{
	PlanFree:   0,
	PlanNormal: 1,
	PlanPro:    2,
	PlanProMax: 3,
}

// Plans lists every tier, lowest first.
func Plans() []Plan {
	return []Plan{PlanFree, PlanNormal, PlanPro, PlanProMax}
}

// Valid reports whether p is a known tier.
func (p Plan) Valid() bool {
	_, ok := planRank[p]
	return ok
}

// Features returns the fixed feature table for p. Unknown plans get the free
// table.
func (p Plan) Features() Features {
	if f, ok := planFeatures[p]; ok {
		return f
	}
	return planFeatures[PlanFree]
}

// Above reports whether p is a strictly higher tier than other.
func (p Plan) Above(other Plan) bool {
	return planRank[p] > planRank[other]
}
