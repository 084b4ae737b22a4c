// Package cluster partitions service sites into bounded-diameter geographic
// groups and validates crew-to-cluster allocations.
package cluster

import (
	"fmt"
	"sort"

	"github.com/fieldroute/fieldroute/internal/geo"
	"github.com/fieldroute/fieldroute/internal/site"
)

// Preset is a named maximum-diameter option.
type Preset string

// Recognized diameter presets, in miles.
const (
	PresetTight  Preset = "tight"
	PresetMedium Preset = "medium"
	PresetNormal Preset = "normal"
	PresetLoose  Preset = "loose"
)

// Miles returns the preset's maximum bounding diameter. Unknown presets
// fall back to PresetNormal.
func (p Preset) Miles() float64 {
	switch p {
	case PresetTight:
		return 50
	case PresetMedium:
		return 75
	case PresetLoose:
		return 150
	default:
		return 100
	}
}

// Cluster is a group of sites whose bounding diameter is within the
// configured cap.
type Cluster struct {
	ID            int
	Sites         []site.Site
	Centroid      geo.Point
	DiameterMiles float64
}

// Assign partitions sites into clusters whose bounding diameter does not
// exceed maxDiameterMiles, using agglomerative merging: each site seeds its
// own cluster, then the pair whose merged diameter is smallest (and legal)
// is merged until no legal merge remains. The trivial one-site-per-cluster
// partition always satisfies the bound, so Assign cannot fail.
//
// Cluster ids are numbered in decreasing size order; ties go to the smaller
// centroid latitude, then longitude. Re-running Assign on the same sites and
// cap yields the same partition.
func Assign(sites []site.Site, maxDiameterMiles float64) []Cluster {
	if maxDiameterMiles <= 0 {
		maxDiameterMiles = PresetNormal.Miles()
	}
	n := len(sites)
	if n == 0 {
		return nil
	}

	// Pairwise distances are reused heavily during merging.
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := geo.DistanceMiles(sites[i].Point(), sites[j].Point())
			dist[i][j] = d
			dist[j][i] = d
		}
	}

	type group struct {
		members  []int
		diameter float64
	}
	groups := make([]*group, n)
	for i := range groups {
		groups[i] = &group{members: []int{i}}
	}

	mergedDiameter := func(a, b *group) float64 {
		max := a.diameter
		if b.diameter > max {
			max = b.diameter
		}
		for _, i := range a.members {
			for _, j := range b.members {
				if dist[i][j] > max {
					max = dist[i][j]
				}
			}
		}
		return max
	}

	centroid := func(g *group) geo.Point {
		pts := make([]geo.Point, len(g.members))
		for i, m := range g.members {
			pts[i] = sites[m].Point()
		}
		return geo.Centroid(pts)
	}

	for len(groups) > 1 {
		bestA, bestB := -1, -1
		bestDiameter := maxDiameterMiles + 1
		bestCentroidDist := 0.0

		for a := 0; a < len(groups); a++ {
			for b := a + 1; b < len(groups); b++ {
				d := mergedDiameter(groups[a], groups[b])
				if d > maxDiameterMiles {
					continue
				}
				if d < bestDiameter {
					bestA, bestB = a, b
					bestDiameter = d
					bestCentroidDist = geo.DistanceMiles(centroid(groups[a]), centroid(groups[b]))
					continue
				}
				if d == bestDiameter {
					cd := geo.DistanceMiles(centroid(groups[a]), centroid(groups[b]))
					if cd < bestCentroidDist {
						bestA, bestB = a, b
						bestCentroidDist = cd
					}
				}
			}
		}

		if bestA < 0 {
			break
		}

		groups[bestA].members = append(groups[bestA].members, groups[bestB].members...)
		groups[bestA].diameter = bestDiameter
		groups = append(groups[:bestB], groups[bestB+1:]...)
	}

	clusters := make([]Cluster, len(groups))
	for i, g := range groups {
		members := make([]site.Site, len(g.members))
		for j, m := range g.members {
			members[j] = sites[m]
		}
		sort.Slice(members, func(a, b int) bool { return members[a].ID < members[b].ID })
		clusters[i] = Cluster{
			Sites:         members,
			Centroid:      centroid(g),
			DiameterMiles: g.diameter,
		}
	}

	sort.Slice(clusters, func(a, b int) bool {
		if len(clusters[a].Sites) != len(clusters[b].Sites) {
			return len(clusters[a].Sites) > len(clusters[b].Sites)
		}
		if clusters[a].Centroid.Lat != clusters[b].Centroid.Lat {
			return clusters[a].Centroid.Lat < clusters[b].Centroid.Lat
		}
		return clusters[a].Centroid.Lon < clusters[b].Centroid.Lon
	})
	for i := range clusters {
		clusters[i].ID = i
		for j := range clusters[i].Sites {
			clusters[i].Sites[j].ClusterID = site.ClusterRef(i)
		}
	}
	return clusters
}

// Label returns a copy of the sites with ClusterID populated from a fresh
// Assign run at the given cap.
func Label(sites []site.Site, maxDiameterMiles float64) []site.Site {
	out := make([]site.Site, 0, len(sites))
	for _, c := range Assign(sites, maxDiameterMiles) {
		out = append(out, c.Sites...)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

// Partition groups pre-clustered sites by their ClusterID. The returned ids
// are sorted ascending. Sites without a cluster assignment produce an error.
func Partition(sites []site.Site) (map[int][]site.Site, []int, error) {
	byCluster := make(map[int][]site.Site)
	for _, s := range sites {
		if s.ClusterID == nil {
			return nil, nil, fmt.Errorf("site %q has no cluster assignment", s.ID)
		}
		byCluster[*s.ClusterID] = append(byCluster[*s.ClusterID], s)
	}

	ids := make([]int, 0, len(byCluster))
	for id := range byCluster {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return byCluster, ids, nil
}

// Allocation summarizes whether a crew count is sufficient for a clustered
// site set. With fewer crews than clusters, planning still covers every site
// sequentially, but takes more days.
type Allocation struct {
	ClusterCount     int
	RequestedCrews   int
	RecommendedCrews int
	Sufficient       bool
	Warning          string
}

// ValidateCrewAllocation checks a requested crew count against the cluster
// layout and produces a recommendation.
func ValidateCrewAllocation(clusters map[int][]site.Site, crews int) Allocation {
	count := len(clusters)
	a := Allocation{
		ClusterCount:     count,
		RequestedCrews:   crews,
		RecommendedCrews: count,
		Sufficient:       crews >= count,
	}
	if !a.Sufficient {
		a.Warning = fmt.Sprintf(
			"%d crews for %d clusters: crews will rotate through clusters over additional days; use %d+ crews for fully parallel planning",
			crews, count, count,
		)
	}
	return a
}
