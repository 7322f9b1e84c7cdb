package history

import "sort"

// VehicleHistory holds every policy history of one vehicle, ordered by
// start date ascending. Equal start dates keep insertion order.
type VehicleHistory struct {
	vehicle  Vehicle
	policies []*PolicyHistory
}

func NewVehicleHistory(vehicle Vehicle) *VehicleHistory {
	return &VehicleHistory{vehicle: vehicle}
}

func (vh *VehicleHistory) Vehicle() Vehicle { return vh.vehicle }

// Len returns the number of policy histories.
func (vh *VehicleHistory) Len() int { return len(vh.policies) }

// AppendPolicyHistory inserts p at its start-date position.
func (vh *VehicleHistory) AppendPolicyHistory(p *PolicyHistory) {
	start := p.StartDate()
	i := sort.Search(len(vh.policies), func(i int) bool {
		return vh.policies[i].StartDate().After(start)
	})
	vh.policies = append(vh.policies, nil)
	copy(vh.policies[i+1:], vh.policies[i:])
	vh.policies[i] = p
}

// PolicyHistories returns the ordered histories. The slice is a copy; the
// histories themselves are shared with the index.
func (vh *VehicleHistory) PolicyHistories() []*PolicyHistory {
	out := make([]*PolicyHistory, len(vh.policies))
	copy(out, vh.policies)
	return out
}
