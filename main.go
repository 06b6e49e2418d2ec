// instancer compares instanced geometry against the same geometry placed
// directly in the world and reports scene statistics.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/df07/go-instancing/pkg/core"
	"github.com/df07/go-instancing/pkg/geometry"
	"github.com/df07/go-instancing/pkg/loaders"
	"github.com/df07/go-instancing/pkg/probe"
	"github.com/df07/go-instancing/pkg/scene"
	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

// sceneConfig holds the flags shared by every command
type sceneConfig struct {
	scene      string
	ply        string
	scale      float64
	translateY float64
	rotateY    float64 // degrees
	gridSize   int
	workers    int
	tolerance  float64
	dumpPLY    string
}

var cfg = sceneConfig{
	scene:      "uv-sphere",
	scale:      1,
	translateY: 1,
	rotateY:    30,
	gridSize:   21,
	tolerance:  probe.DefaultTolerance,
}

// Meshes available by name to the probe command
var meshes = map[string]func() ([]core.Vec3, []int, error){
	"uv-sphere": func() ([]core.Vec3, []int, error) {
		return scene.UVSphereGeometry(16, 32)
	},
	"icosahedron": func() ([]core.Vec3, []int, error) {
		vertices, faces := scene.IcosahedronGeometry()
		return vertices, faces, nil
	},
}

var cmdRoot = &cobra.Command{
	Use:           "instancer",
	Short:         "Probe and inspect instanced geometry",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// glog's flags are set through cobra; mark the go flag set as parsed
		flag.CommandLine.Parse(nil)
	},
}

var cmdProbe = &cobra.Command{
	Use:   "probe",
	Short: "Compare a directly transformed mesh against an instance of it on a ray grid",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := runProbe(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		fmt.Println(report)
		if !report.OK() {
			return fmt.Errorf("direct and instanced geometry disagree on %d checks", len(report.Mismatches))
		}
		return nil
	},
}

var cmdStats = &cobra.Command{
	Use:   "stats",
	Short: "Print primitive counts, bounds and areas of a scene",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := createSceneFromConfig(cfg)
		if err != nil {
			return err
		}
		printStats(s)
		if cfg.dumpPLY != "" {
			return dumpPLY(cfg, cfg.dumpPLY)
		}
		return nil
	},
}

func init() {
	flags := cmdRoot.PersistentFlags()
	flags.StringVar(&cfg.scene, "scene", cfg.scene, "Scene or mesh name: "+strings.Join(sceneNames(), ", "))
	flags.StringVar(&cfg.ply, "ply", "", "PLY mesh to use instead of a named mesh")
	flags.Float64Var(&cfg.scale, "scale", cfg.scale, "Uniform scale of the mesh transform")
	flags.Float64Var(&cfg.translateY, "translate-y", cfg.translateY, "Y translation of the mesh transform")
	flags.Float64Var(&cfg.rotateY, "rotate-y", cfg.rotateY, "Rotation about y of the mesh transform, in degrees")
	flags.IntVar(&cfg.gridSize, "grid", cfg.gridSize, "Instance grid size, or probe ray grid size")
	flags.AddGoFlagSet(flag.CommandLine)

	cmdProbe.Flags().IntVar(&cfg.workers, "workers", 0, "Maximum rays in flight (0 uses all CPUs)")
	cmdProbe.Flags().Float64Var(&cfg.tolerance, "tolerance", cfg.tolerance, "Absolute tolerance on hit distance, time, point and direction")

	cmdStats.Flags().StringVar(&cfg.dumpPLY, "dump-ply", "", "Write the mesh, transformed to world space, to this PLY file")

	cmdRoot.AddCommand(cmdProbe, cmdStats)
}

func main() {
	glog.CopyStandardLogTo("INFO")
	defer glog.Flush()

	if err := cmdRoot.ExecuteContext(context.Background()); err != nil {
		glog.Flush()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// sceneNames lists the names accepted by --scene
func sceneNames() []string {
	names := []string{"sphere-group", "instance-grid", "primitives"}
	for name := range meshes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// meshTransform builds scale, then rotation about y, then translation
func meshTransform(scale, translateY, rotateYDegrees float64) core.Transform {
	return core.Compose(
		core.UniformScale(scale),
		core.Rotate(core.NewVec3(0, 1, 0), rotateYDegrees*math.Pi/180),
		core.Translate(core.NewVec3(0, translateY, 0)),
	)
}

// loadMesh resolves a named mesh, or reads plyPath when it is set
func loadMesh(name, plyPath string) ([]core.Vec3, []int, error) {
	if plyPath != "" {
		data, err := loaders.LoadPLY(plyPath)
		if err != nil {
			return nil, nil, fmt.Errorf("while loading mesh %s: %w", plyPath, err)
		}
		return data.Vertices, data.Faces, nil
	}
	build, ok := meshes[name]
	if !ok {
		return nil, nil, fmt.Errorf("unknown mesh %q (available: %s)", name, strings.Join(sortedKeys(meshes), ", "))
	}
	return build()
}

// createScene resolves a preset scene by name
func createScene(name string) (*scene.Scene, error) {
	c := cfg
	c.scene = name
	c.ply = ""
	return createSceneFromConfig(c)
}

func createSceneFromConfig(c sceneConfig) (*scene.Scene, error) {
	switch {
	case c.ply == "" && c.scene == "sphere-group":
		return scene.NewSphereGroupScene()
	case c.ply == "" && c.scene == "instance-grid":
		return scene.NewInstanceGridScene(c.gridSize)
	case c.ply == "" && c.scene == "primitives":
		return scene.NewPrimitiveGroupScene()
	}

	if c.ply == "" {
		if _, ok := meshes[c.scene]; !ok {
			return nil, fmt.Errorf("unknown scene %q (available: %s)", c.scene, strings.Join(sceneNames(), ", "))
		}
	}
	vertices, faces, err := loadMesh(c.scene, c.ply)
	if err != nil {
		return nil, err
	}
	return scene.NewInstancedMeshScene(vertices, faces, meshTransform(c.scale, c.translateY, c.rotateY))
}

// dumpPLY writes the configured mesh with its transform baked into the vertices
func dumpPLY(c sceneConfig, path string) error {
	vertices, faces, err := loadMesh(c.scene, c.ply)
	if err != nil {
		return err
	}
	mesh, err := geometry.NewTriangleMesh(vertices, faces, nil)
	if err != nil {
		return fmt.Errorf("while validating mesh: %w", err)
	}

	toWorld := meshTransform(c.scale, c.translateY, c.rotateY)
	world := make([]core.Vec3, len(vertices))
	for i, v := range vertices {
		world[i] = toWorld.Point(v)
	}
	if err := loaders.SavePLY(path, &loaders.PLYData{Vertices: world, Faces: faces}, loaders.FormatBinaryLittleEndian); err != nil {
		return fmt.Errorf("while writing %s: %w", path, err)
	}
	glog.Infof("Wrote %d triangles to %s", mesh.GetTriangleCount(), path)
	return nil
}

// runProbe builds the direct and instanced variants of the configured mesh
// and compares them on a parallel ray grid sized to the transform
func runProbe(ctx context.Context, c sceneConfig) (*probe.Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	vertices, faces, err := loadMesh(c.scene, c.ply)
	if err != nil {
		return nil, err
	}

	toWorld := meshTransform(c.scale, c.translateY, c.rotateY)
	if !toWorld.IsInvertible() {
		return nil, fmt.Errorf("mesh transform %v is not invertible: %w", toWorld, core.ErrInvalidArgument)
	}
	direct, err := scene.NewDirectMeshScene(vertices, faces, toWorld)
	if err != nil {
		return nil, fmt.Errorf("while building direct scene: %w", err)
	}
	instanced, err := scene.NewInstancedMeshScene(vertices, faces, toWorld)
	if err != nil {
		return nil, fmt.Errorf("while building instanced scene: %w", err)
	}

	grid := probe.DefaultGrid(c.scale, core.NewVec3(0, c.translateY, 0))
	grid.N = c.gridSize
	glog.Infof("Probing %d triangles with a %dx%d ray grid", len(faces)/3, grid.N, grid.N)

	return probe.Compare(ctx, direct, instanced, grid.Rays(), probe.Options{
		Workers:       c.workers,
		Tolerance:     c.tolerance,
		CheckInstance: true,
	})
}

func printStats(s *scene.Scene) {
	var bvh geometry.BVHStats
	if s.BVH != nil {
		bvh = s.BVH.Stats()
	}
	box := s.BoundingBox()

	fmt.Printf("Shapes:               %d\n", len(s.Shapes))
	fmt.Printf("Shape groups:         %s\n", strings.Join(s.ShapeGroupIDs(), ", "))
	identity := 0
	for _, inst := range s.Instances() {
		if inst.Transform(0).IsIdentity() {
			identity++
		}
	}
	fmt.Printf("Instances:            %d (%d identity)\n", len(s.Instances()), identity)
	fmt.Printf("Effective primitives: %d\n", s.GetPrimitiveCount())
	fmt.Printf("Stored primitives:    %d\n", s.GetStoredPrimitiveCount())
	if box.IsValid() {
		fmt.Printf("Bounds:               %v - %v\n", box.Min, box.Max)
	} else {
		fmt.Printf("Bounds:               empty\n")
	}
	fmt.Printf("Surface area:         %.6g\n", s.SurfaceArea())
	fmt.Printf("Top-level BVH:        %d nodes, %d leaves, max depth %d\n", bvh.TotalNodes, bvh.LeafNodes, bvh.MaxDepth)
}

func sortedKeys(m map[string]func() ([]core.Vec3, []int, error)) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
