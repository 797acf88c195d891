/*
Copyright 2016 Medcl (m AT medcl.net)

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

   http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package logger

import (
	"fmt"
	"strings"

	log "github.com/cihub/seelog"
)

const configTemplate = `
<seelog type="sync" minlevel="%s">
	<outputs formatid="main">
		<console />%s
	</outputs>
	<formats>
		<format id="main" format="[%%Date(01-02) %%Time] [%%LEV] [%%File:%%Line] %%Msg%%n"/>
	</formats>
</seelog>`

// SetLogging replaces the global seelog logger, logFile is optional
func SetLogging(logLevel string, logFile string) {
	logLevel = strings.ToLower(strings.TrimSpace(logLevel))
	if logLevel == "" {
		logLevel = "info"
	}

	fileOutput := ""
	if logFile != "" {
		fileOutput = fmt.Sprintf("\n\t\t<file path=%q />", logFile)
	}

	logger, err := log.LoggerFromConfigAsString(fmt.Sprintf(configTemplate, logLevel, fileOutput))
	if err != nil {
		fmt.Println("failed to init logging:", err)
		return
	}
	err = log.ReplaceLogger(logger)
	if err != nil {
		fmt.Println("failed to replace logger:", err)
	}
}

// Flush is flush logs to output
func Flush() {
	log.Flush()
}
