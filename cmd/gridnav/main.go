// Package main contains a command to plan a path on a grid map and optionally
// execute it against an MQTT motion backend.
package main

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/edgerobotics/gridnav/gridmap"
	"github.com/edgerobotics/gridnav/motionplan"
	"github.com/edgerobotics/gridnav/navigation"
	"github.com/edgerobotics/gridnav/navigation/mqttbackend"
	"github.com/edgerobotics/gridnav/spatialmath"
)

var logger = golog.NewDevelopmentLogger("gridnav")

func main() {
	goutils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	MapFile string  `flag:"map,usage=path to map_server YAML metadata"`
	StartX  float64 `flag:"start-x,usage=start x in meters"`
	StartY  float64 `flag:"start-y,usage=start y in meters"`
	GoalX   float64 `flag:"goal-x,usage=goal x in meters"`
	GoalY   float64 `flag:"goal-y,usage=goal y in meters"`
	GoalYaw float64 `flag:"goal-yaw,usage=goal heading in radians"`
	Step    int     `flag:"step,usage=waypoint reduction step (0 = auto)"`
	Crop    bool    `flag:"crop,usage=crop the grid to its obstacle bounds before planning"`
	Broker  string  `flag:"broker,usage=MQTT broker URL; when set the plan is executed"`
	MinGap  float64 `flag:"min-gap,usage=waypoint convergence radius in meters"`
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) (err error) {
	var argsParsed Arguments
	if err := goutils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if argsParsed.MapFile == "" {
		return errors.New("a map file is required")
	}

	gm, err := gridmap.LoadMap(argsParsed.MapFile)
	if err != nil {
		return err
	}
	rows, cols := gm.Dims()
	logger.Infow("map loaded", "rows", rows, "cols", cols, "resolution", gm.Resolution())
	if argsParsed.Crop {
		gm.CalcObstacleMap(gm.Obstacles())
		rows, cols = gm.Dims()
		logger.Infow("cropped to obstacle bounds", "rows", rows, "cols", cols)
	}

	start := spatialmath.NewPose(argsParsed.StartX, argsParsed.StartY, 0)
	goal := spatialmath.NewPose(argsParsed.GoalX, argsParsed.GoalY, argsParsed.GoalYaw)

	seq, err := motionplan.Plan(ctx, motionplan.AStar, motionplan.Config{
		Map:   gm,
		Start: start,
		Goal:  goal,
		Step:  argsParsed.Step,
	}, logger)
	if err != nil {
		return err
	}
	for wp := seq.Head(); wp != nil; wp = wp.Next() {
		logger.Infof("%s", wp)
	}
	if argsParsed.Broker == "" {
		return nil
	}

	backend, err := mqttbackend.New(mqttbackend.Config{
		Broker: argsParsed.Broker,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, backend.Close(ctx))
	}()

	tracker, err := navigation.NewTracker(
		backend,
		navigation.NewStaticLocalizer(start),
		gm,
		navigation.Options{MinGap: argsParsed.MinGap},
		logger,
	)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, tracker.Close(ctx))
	}()

	status, err := tracker.TrackTrajectory(ctx, seq, argsParsed.MinGap)
	if err != nil {
		return err
	}
	logger.Infow("navigation finished", "status", status.String())
	return nil
}
