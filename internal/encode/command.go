package encode

import (
	"fmt"
	"strconv"

	"ripqueue/internal/streamplan"
)

// BuildArgs assembles the ffmpeg argument list for one encoder attempt
// on one work item. inputArgs (hwaccel setup) go before "-i" and
// outputArgs after the input; the caller places "-i", input between
// them.
func BuildArgs(accel Accel, targets QualityTargets, deinterlace bool, plan streamplan.Plan, vaapiDevice string) (inputArgs, outputArgs []string) {
	switch accel {
	case AccelQSV:
		inputArgs = []string{"-hwaccel", "qsv", "-hwaccel_output_format", "qsv"}
		vf := "vpp_qsv=deinterlace=0"
		if deinterlace {
			vf = "vpp_qsv=deinterlace=1"
		}
		outputArgs = append(outputArgs,
			"-vf", vf,
			"-c:v", "hevc_qsv",
			"-global_quality", strconv.Itoa(targets.QSVGlobalQuality),
		)
	case AccelVAAPI:
		device := vaapiDevice
		if device == "" {
			device = "/dev/dri/renderD128"
		}
		inputArgs = []string{"-vaapi_device", device, "-hwaccel", "vaapi", "-hwaccel_output_format", "vaapi"}
		vf := "format=nv12|vaapi,hwupload"
		if deinterlace {
			vf = "deinterlace_vaapi,format=nv12|vaapi,hwupload"
		}
		outputArgs = append(outputArgs,
			"-vf", vf,
			"-c:v", "hevc_vaapi",
			"-qp", strconv.Itoa(targets.VAAPIQP),
		)
	case AccelSW:
		if deinterlace {
			outputArgs = append(outputArgs, "-vf", "yadif")
		}
		outputArgs = append(outputArgs,
			"-c:v", "libx265",
			"-crf", strconv.Itoa(targets.SWCRF),
		)
	}

	outputArgs = append(outputArgs, audioArgs(plan)...)
	outputArgs = append(outputArgs, subtitleArgs(plan)...)
	return inputArgs, outputArgs
}

func audioArgs(plan streamplan.Plan) []string {
	var args []string
	for i, a := range plan.Audio {
		args = append(args, "-map", fmt.Sprintf("0:%d", a.SourceIndex))
		switch a.Codec {
		case "copy":
			args = append(args, fmt.Sprintf("-c:a:%d", i), "copy")
		case "eac3":
			args = append(args, fmt.Sprintf("-c:a:%d", i), "eac3", fmt.Sprintf("-b:a:%d", i), fmt.Sprintf("%dk", a.BitrateKbps))
		case "aac":
			args = append(args, fmt.Sprintf("-c:a:%d", i), "aac", fmt.Sprintf("-b:a:%d", i), fmt.Sprintf("%dk", a.BitrateKbps), fmt.Sprintf("-ac:%d", i), "2")
		}
	}
	return args
}

func subtitleArgs(plan streamplan.Plan) []string {
	kept, _ := streamplan.FilterMKVCompatible(plan.Subtitles)
	var args []string
	for _, s := range kept {
		args = append(args, "-map", fmt.Sprintf("0:%d", s.SourceIndex), "-c:s", "copy")
	}
	return args
}
