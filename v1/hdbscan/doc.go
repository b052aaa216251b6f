// Package hdbscan implements hierarchical density-based clustering.
//
// Cluster builds the minimum spanning tree of the mutual reachability graph,
// condenses the resulting single-linkage hierarchy with MinClusterSize and
// selects flat clusters by excess of mass. Points in no selected cluster get
// the label Noise (-1). Each clustered point also gets a membership
// probability in [0, 1]: the density level at which it left its cluster,
// relative to the densest member.
//
// Distances are Euclidean. Cluster labels are numbered 0..k-1 in order of
// each cluster's lowest point index, so a given input always yields the same
// labelling.
package hdbscan
