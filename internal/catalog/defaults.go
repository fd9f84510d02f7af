package catalog

// Default returns the built-in decision table. Tabular is the fully
// specified branch (models, source-grouped datasets, descriptions); the
// LLM, CV and Audio branches only carry flat dataset lists for now.
func Default() *Catalog {
	table, err := New(
		Category{
			Key: "Tabular",
			Subtasks: []Subtask{
				{
					Key: "classification",
					Models: []string{
						"LogisticRegression",
						"RandomForestClassifier",
						"GradientBoostingClassifier",
						"SVC",
						"KNeighborsClassifier",
					},
					Datasets: GroupedDatasets(
						SourceGroup{
							Source: "sklearn",
							Datasets: []string{
								"load_iris",
								"load_wine",
								"load_breast_cancer",
								"load_digits",
							},
						},
						SourceGroup{
							Source: "kaggle",
							Datasets: []string{
								"heptapod/titanic",
								"uciml/mushroom-classification",
							},
						},
					),
					Description: "Predicting a categorical target variable (class)",
				},
				{
					Key: "regression",
					Models: []string{
						"LinearRegression",
						"Ridge",
						"Lasso",
						"RandomForestRegressor",
						"GradientBoostingRegressor",
					},
					Datasets: GroupedDatasets(
						SourceGroup{
							Source: "sklearn",
							Datasets: []string{
								"load_diabetes",
								"california_housing",
							},
						},
						SourceGroup{
							Source: "kaggle",
							Datasets: []string{
								"c/house-prices-advanced-regression-techniques",
							},
						},
					),
					Description: "Predicting a numeric target variable",
				},
			},
		},
		Category{
			Key: "LLM",
			Subtasks: []Subtask{
				{Key: "code", Datasets: FlatDatasets("TheStack", "CodeParrot", "BigCodeBench")},
				{Key: "chat", Datasets: FlatDatasets("ShareGPT", "OpenAssistant", "UltraChat")},
				{Key: "translation", Datasets: FlatDatasets("WMT", "ParaCrawl")},
				{Key: "summarization", Datasets: FlatDatasets("CNN/DailyMail", "XSUM")},
			},
		},
		Category{
			Key: "CV",
			Subtasks: []Subtask{
				{Key: "detection", Datasets: FlatDatasets("COCO", "Objects365", "OpenImages")},
				{Key: "classification", Datasets: FlatDatasets("ImageNet", "CIFAR-10", "CIFAR-100")},
				{Key: "segmentation", Datasets: FlatDatasets("ADE20K", "Cityscapes")},
			},
		},
		Category{
			Key: "Audio",
			Subtasks: []Subtask{
				{Key: "speech_to_text", Datasets: FlatDatasets("LibriSpeech", "CommonVoice")},
				{Key: "speaker_id", Datasets: FlatDatasets("VoxCeleb", "LibriSpeech")},
				{Key: "audio_classification", Datasets: FlatDatasets("ESC-50", "UrbanSound8K")},
			},
		},
	)
	if err != nil {
		panic(err)
	}
	return table
}
