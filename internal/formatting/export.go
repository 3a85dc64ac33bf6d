package formatting

import (
	"fmt"
	"strings"

	"github.com/iago/assessment-dispatch/internal/domain"
	"github.com/xuri/excelize/v2"
)

var categoryLabels = map[string]string{
	domain.CategoryAnalysisEvaluation:        "Analysis & Evaluation",
	domain.CategoryApplicationProblemSolving: "Application & Problem Solving",
	domain.CategoryFactualRecall:             "Factual Recall",
	domain.CategoryOpenEnded:                 "Open-Ended",
	domain.CategoryConceptualUnderstanding:   "Conceptual Understanding",
}

// rubricRows returns the criteria rows of a rubric: one row per criterion
// index, holding the criterion name followed by one description per band.
// Rows stop at the shortest band.
func rubricRows(rubric domain.Rubric) [][]string {
	rows := make([][]string, 0)
	for index := 0; ; index++ {
		row := make([]string, 0, len(domain.GradeBands)+1)
		for _, band := range domain.GradeBands {
			criteria := rubric.GradeDescriptors[band].Criterion
			if index >= len(criteria) {
				return rows
			}
			if len(row) == 0 {
				row = append(row, criteria[index].Name)
			}
			row = append(row, criteria[index].Description)
		}
		rows = append(rows, row)
	}
}

func markRange(descriptor domain.GradeDescriptor) string {
	return fmt.Sprintf("%s-%s%%", descriptor.MarkMin, descriptor.MarkMax)
}

// RubricMarkdown renders the rubric as a markdown table.
func RubricMarkdown(rubric domain.Rubric) string {
	var b strings.Builder
	if rubric.Title != "" {
		fmt.Fprintf(&b, "# %s\n", rubric.Title)
	}
	if rubric.GradeDescriptors == nil {
		return b.String()
	}

	b.WriteString("|   |")
	for _, band := range domain.GradeBands {
		fmt.Fprintf(&b, " %s |", domain.GradeBandLabels[band])
	}
	b.WriteString("\n| :- |")
	for range domain.GradeBands {
		b.WriteString(" :-: |")
	}
	b.WriteString("\n| **Grade%** |")
	for _, band := range domain.GradeBands {
		fmt.Fprintf(&b, " %s |", markRange(rubric.GradeDescriptors[band]))
	}
	b.WriteString("\n")

	for _, row := range rubricRows(rubric) {
		fmt.Fprintf(&b, "| **%s** |", row[0])
		for _, description := range row[1:] {
			fmt.Fprintf(&b, " %s |", description)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RubricXLSX renders the rubric as a single-sheet workbook.
func RubricXLSX(rubric domain.Rubric) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	sheet := file.GetSheetName(0)
	header := []any{""}
	marks := []any{"Grade%"}
	for _, band := range domain.GradeBands {
		header = append(header, domain.GradeBandLabels[band])
		marks = append(marks, markRange(rubric.GradeDescriptors[band]))
	}
	if err := file.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header row: %w", err)
	}
	if err := file.SetSheetRow(sheet, "A2", &marks); err != nil {
		return nil, fmt.Errorf("write marks row: %w", err)
	}

	rows := rubricRows(rubric)
	for i, row := range rows {
		values := make([]any, 0, len(row))
		for _, value := range row {
			values = append(values, value)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+3)
		if err != nil {
			return nil, err
		}
		if err := file.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write criterion row %d: %w", i+1, err)
		}
		if err := file.SetRowHeight(sheet, i+3, 80); err != nil {
			return nil, err
		}
	}

	if err := styleRubricSheet(file, sheet, len(rows)+2); err != nil {
		return nil, err
	}

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func styleRubricSheet(file *excelize.File, sheet string, lastRow int) error {
	if err := file.SetColWidth(sheet, "A", "A", 30); err != nil {
		return err
	}
	if err := file.SetColWidth(sheet, "B", "F", 50); err != nil {
		return err
	}

	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	heading, err := file.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 12},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "top"},
		Border:    border,
	})
	if err != nil {
		return err
	}
	rowLabel, err := file.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 12},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    border,
	})
	if err != nil {
		return err
	}
	body, err := file.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Size: 12},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
		Border:    border,
	})
	if err != nil {
		return err
	}

	if err := file.SetCellStyle(sheet, "A1", "F1", heading); err != nil {
		return err
	}
	if err := file.SetCellStyle(sheet, "B2", "F2", body); err != nil {
		return err
	}
	if err := file.SetCellStyle(sheet, "A2", fmt.Sprintf("A%d", lastRow), rowLabel); err != nil {
		return err
	}
	if lastRow >= 3 {
		if err := file.SetCellStyle(sheet, "B3", fmt.Sprintf("F%d", lastRow), body); err != nil {
			return err
		}
	}
	return nil
}

// VivaMarkdown renders a viva artifact with its static, random and AI questions.
func VivaMarkdown(artifact domain.VivaArtifact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", artifact.ProjectTitle)
	fmt.Fprintf(&b, "## Submission ID #%d | %s\n\n", artifact.SubmissionID, artifact.UnitCode)

	b.WriteString("## Static Questions\n")
	for i, question := range artifact.StaticQuestions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, question)
	}

	b.WriteString("\n## Random Questions\n")
	for i, question := range artifact.RandomQuestions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, question.Question)
	}

	b.WriteString("\n## AI Questions\n")
	for _, category := range domain.CanonicalCategories {
		questions := artifact.AIQuestions[category]
		for idx := 1; ; idx++ {
			question, ok := questions[fmt.Sprintf("question_%d", idx)]
			if !ok {
				break
			}
			if idx == 1 {
				fmt.Fprintf(&b, "### %s questions:\n", categoryLabels[category])
			}
			fmt.Fprintf(&b, "%d. %s\n", idx, question)
		}
	}
	return b.String()
}
