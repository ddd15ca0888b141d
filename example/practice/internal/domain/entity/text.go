package entity

// PlainText is a row of plain_text, the input of plainTextJob.
type PlainText struct {
	ID   int    `gorm:"column:id;primaryKey;autoIncrement"`
	Text string `gorm:"column:text;not null"`
}

// TableName implements gorm's tabler.
func (PlainText) TableName() string { return "plain_text" }

// ResultText is a row of result_text, the output of plainTextJob.
type ResultText struct {
	ID   int    `gorm:"column:id;primaryKey;autoIncrement"`
	Text string `gorm:"column:text;not null"`
}

// TableName implements gorm's tabler.
func (ResultText) TableName() string { return "result_text" }
