// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package api

import (
	"github.com/ZSC714725/cdripper/internal/tools"
)

func toolsToAPI(v tools.Versions) ToolsResponse {
	return ToolsResponse{
		Ripper:  toolVersionToAPI(v.Ripper),
		Encoder: toolVersionToAPI(v.Encoder),
	}
}

func toolVersionToAPI(v tools.ToolVersion) ToolVersion {
	return ToolVersion{
		Name:    v.Name,
		Binary:  v.Binary,
		Version: v.Version,
		Banner:  v.Banner,
		Error:   v.Err,
	}
}
