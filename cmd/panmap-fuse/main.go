// Command panmap-fuse builds a .panmap multi-TSDF map from labeled PCD
// frames. Each frame needs x/y/z and a per-point instance label; the
// camera pose is taken from the PCD VIEWPOINT. Submaps are allocated here,
// one per distinct label, before integration.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/seqsense/pcgol/mat"
	"github.com/seqsense/pcgol/pc"

	"github.com/seqsense/panmap/integrator"
	"github.com/seqsense/panmap/submap"
	"github.com/seqsense/panmap/tsdf"
)

func main() {
	out := flag.String("out", "map.panmap", "output map file")
	voxelSize := flag.Float64("voxel-size", 0.05, "voxel edge length [m]")
	voxelsPerSide := flag.Int("voxels-per-side", 16, "block edge length in voxels")
	truncation := flag.Float64("truncation", 0, "truncation distance [m] (0 = 4 x voxel size)")
	backend := flag.String("backend", "simple", "fusion backend type (simple|fast)")
	maxWeight := flag.Float64("max-weight", 10000, "per-voxel weight cap")
	constWeight := flag.Bool("const-weight", false, "use constant observation weight instead of 1/z^2")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: panmap-fuse [flags] <frame.pcd> [frame.pcd ...]")
		os.Exit(2)
	}
	if *voxelSize <= 0 || *voxelsPerSide <= 0 {
		fmt.Fprintln(os.Stderr, "voxel-size and voxels-per-side must be positive")
		os.Exit(2)
	}
	trunc := float32(*truncation)
	if trunc <= 0 {
		trunc = 4 * float32(*voxelSize)
	}

	level := slog.LevelInfo
	if !*verbose {
		level = slog.LevelWarn
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	cfg := submap.Config{
		VoxelSize:          float32(*voxelSize),
		VoxelsPerSide:      *voxelsPerSide,
		TruncationDistance: trunc,
	}
	integ, err := integrator.NewNaive(integrator.Config{
		Backend: tsdf.FusionType(*backend),
		BackendConfig: tsdf.FusionConfig{
			TruncationDistance: trunc,
			MaxWeight:          float32(*maxWeight),
			ConstantWeight:     *constWeight,
		},
	}, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	collection := submap.NewCollection()
	for _, path := range flag.Args() {
		frame, err := loadFrame(path)
		if err != nil {
			log.Error("loading frame failed", "file", path, "error", err)
			os.Exit(1)
		}
		// The integrator never creates submaps; allocate them here.
		for _, id := range frame.ids {
			if !collection.Exists(id) {
				collection.Add(submap.New(id, cfg))
			}
		}
		if err := integ.ProcessPointCloud(collection, frame.pose, frame.points, frame.colors, frame.ids); err != nil {
			log.Error("integration failed", "file", path, "error", err)
			os.Exit(1)
		}
		log.Info("integrated frame", "file", path, "points", len(frame.points))
	}

	if err := submap.Save(*out, collection); err != nil {
		log.Error("saving map failed", "file", *out, "error", err)
		os.Exit(1)
	}
	log.Info("wrote map", "file", *out, "submaps", collection.Len())
}

type frame struct {
	pose   mat.Mat4
	points pc.Vec3Slice
	colors []tsdf.Color
	ids    []int
}

func loadFrame(path string) (*frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pp, err := pc.Unmarshal(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	it, err := pp.Vec3Iterator()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	itL, err := pp.Uint32Iterator("label")
	if err != nil {
		return nil, fmt.Errorf("%s: instance label field is required: %w", path, err)
	}
	itRGB, _ := pp.Float32Iterator("rgb")

	fr := &frame{pose: poseFromViewpoint(pp.Viewpoint)}
	for i := 0; i < pp.Points; i++ {
		fr.points = append(fr.points, it.Vec3())
		fr.ids = append(fr.ids, int(itL.Uint32()))
		color := tsdf.Color{R: 255, G: 255, B: 255}
		if itRGB != nil {
			// PCL packs the color into the float's bit pattern.
			rgb := math.Float32bits(itRGB.Float32())
			color = tsdf.Color{R: uint8(rgb >> 16), G: uint8(rgb >> 8), B: uint8(rgb)}
			itRGB.Incr()
		}
		fr.colors = append(fr.colors, color)
		it.Incr()
		itL.Incr()
	}
	return fr, nil
}

// poseFromViewpoint converts a PCD VIEWPOINT (tx ty tz qw qx qy qz) to a
// transformation matrix. Anything else yields identity.
func poseFromViewpoint(vp []float32) mat.Mat4 {
	identity := mat.Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
	if len(vp) != 7 {
		return identity
	}
	tx, ty, tz := vp[0], vp[1], vp[2]
	w, x, y, z := vp[3], vp[4], vp[5], vp[6]
	return mat.Mat4{
		1 - 2*(y*y+z*z), 2 * (x*y + z*w), 2 * (x*z - y*w), 0,
		2 * (x*y - z*w), 1 - 2*(x*x+z*z), 2 * (y*z + x*w), 0,
		2 * (x*z + y*w), 2 * (y*z - x*w), 1 - 2*(x*x+y*y), 0,
		tx, ty, tz, 1,
	}
}
