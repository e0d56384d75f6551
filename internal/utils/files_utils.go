/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package utils

import (
	"fmt"
	"os"
	"strings"
)

// ReadStatementsFromFile reads candidate statements separated by ";\n".
// Each returned entry is validated on its own.
func ReadStatementsFromFile(filePath string) ([]string, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	normalized := strings.ReplaceAll(string(content), "\r\n", "\n")
	sqlStatements := strings.Split(normalized, ";\n")
	var trimmedStatements []string
	for _, stmt := range sqlStatements {
		trimmedStmt := strings.TrimSpace(stmt)
		if trimmedStmt != "" {
			trimmedStatements = append(trimmedStatements, trimmedStmt)
		}
	}
	return trimmedStatements, nil
}

// ReadContextFiles reads the content of the specified context files and combines them into a single string.
func ReadContextFiles(filePaths string) (string, error) {
	if filePaths == "" {
		return "", nil
	}

	paths := strings.Split(filePaths, ",")
	var combinedContext strings.Builder
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read context file '%s': %w", path, err)
		}
		combinedContext.WriteString("\n-- Context from file: " + path + " --\n")
		combinedContext.WriteString(string(content))
	}
	return combinedContext.String(), nil
}

// ParseTablesFlag parses "table1[colA,colB],table2" into a table -> columns
// map. A nil column list means every column of the table.
func ParseTablesFlag(tablesFlag string) (map[string][]string, error) {
	tableColumns := make(map[string][]string)
	if tablesFlag == "" {
		return tableColumns, nil
	}

	tablesFlag = strings.ReplaceAll(tablesFlag, " ", "")

	for _, part := range SplitOutsideBrackets(tablesFlag) {
		if part == "" {
			continue
		}
		bracketStart := strings.Index(part, "[")
		if bracketStart == -1 {
			tableColumns[part] = nil
			continue
		}
		bracketEnd := strings.Index(part, "]")
		if bracketEnd == -1 || bracketEnd < bracketStart {
			return nil, fmt.Errorf("missing closing bracket in: %s", part)
		}

		tableName := part[:bracketStart]
		if tableName == "" {
			return nil, fmt.Errorf("missing table name in: %s", part)
		}
		var columns []string
		for _, col := range strings.Split(part[bracketStart+1:bracketEnd], ",") {
			if col != "" {
				columns = append(columns, col)
			}
		}
		tableColumns[tableName] = columns
	}

	return tableColumns, nil
}

// SplitOutsideBrackets splits s on commas that are not within square brackets.
func SplitOutsideBrackets(s string) []string {
	var result []string
	var current strings.Builder
	inBrackets := false

	for _, char := range s {
		switch char {
		case '[':
			inBrackets = true
			current.WriteRune(char)
		case ']':
			inBrackets = false
			current.WriteRune(char)
		case ',':
			if inBrackets {
				current.WriteRune(char)
			} else {
				result = append(result, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(char)
		}
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}

	return result
}
